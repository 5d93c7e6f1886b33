package contract

import (
	"crypto/x509"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	"github.com/hyperledger/fabric-protos-go/peer"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// compositeKeySep mirrors the separator the Fabric stub uses when building
// composite keys, so partial-key prefix scans behave like the real thing.
const compositeKeySep = "\x00"

type recordedEvent struct {
	name    string
	payload []byte
}

// mockStub is an in-memory world state implementing the slice of
// shim.ChaincodeStubInterface the contract exercises. The embedded interface
// panics on anything unimplemented, which is what we want in tests.
//
// Reads are served from a snapshot taken at beginTx, matching the documented
// shim behavior: GetState does not consider data modified by PutState that
// has not been committed.
type mockStub struct {
	shim.ChaincodeStubInterface
	state    map[string][]byte
	snapshot map[string][]byte
	history  map[string][]*queryresult.KeyModification
	events   []recordedEvent
	txID     string
	txTime   time.Time
}

func newMockStub() *mockStub {
	return &mockStub{
		state:    map[string][]byte{},
		snapshot: map[string][]byte{},
		history:  map[string][]*queryresult.KeyModification{},
		txID:     "tx0",
		txTime:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// beginTx advances the simulated transaction id and timestamp and snapshots
// the committed state that this transaction's reads will observe.
func (s *mockStub) beginTx(txID string) {
	s.txID = txID
	s.txTime = s.txTime.Add(time.Minute)
	s.snapshot = make(map[string][]byte, len(s.state))
	for key, value := range s.state {
		s.snapshot[key] = value
	}
}

func (s *mockStub) GetTxID() string {
	return s.txID
}

func (s *mockStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(s.txTime), nil
}

func (s *mockStub) GetState(key string) ([]byte, error) {
	value, ok := s.snapshot[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *mockStub) PutState(key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	s.state[key] = stored
	s.history[key] = append(s.history[key], &queryresult.KeyModification{
		TxId:      s.txID,
		Value:     stored,
		Timestamp: timestamppb.New(s.txTime),
	})
	return nil
}

func (s *mockStub) DelState(key string) error {
	delete(s.state, key)
	s.history[key] = append(s.history[key], &queryresult.KeyModification{
		TxId:      s.txID,
		IsDelete:  true,
		Timestamp: timestamppb.New(s.txTime),
	})
	return nil
}

func (s *mockStub) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	key := compositeKeySep + objectType + compositeKeySep
	for _, attr := range attributes {
		key += attr + compositeKeySep
	}
	return key, nil
}

func (s *mockStub) SetEvent(name string, payload []byte) error {
	s.events = append(s.events, recordedEvent{name: name, payload: payload})
	return nil
}

func (s *mockStub) lastEvent() *recordedEvent {
	if len(s.events) == 0 {
		return nil
	}
	return &s.events[len(s.events)-1]
}

func (s *mockStub) sortedKeysWithPrefix(prefix string) []string {
	keys := []string{}
	for key := range s.snapshot {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (s *mockStub) GetStateByPartialCompositeKey(objectType string, attributes []string) (shim.StateQueryIteratorInterface, error) {
	prefix, _ := s.CreateCompositeKey(objectType, attributes)
	return s.iteratorFor(s.sortedKeysWithPrefix(prefix)), nil
}

func (s *mockStub) GetStateByPartialCompositeKeyWithPagination(objectType string, attributes []string, pageSize int32, bookmark string) (shim.StateQueryIteratorInterface, *peer.QueryResponseMetadata, error) {
	prefix, _ := s.CreateCompositeKey(objectType, attributes)
	keys := s.sortedKeysWithPrefix(prefix)

	start := 0
	if bookmark != "" {
		for i, key := range keys {
			if key >= bookmark {
				start = i
				break
			}
			start = i + 1
		}
	}

	end := start + int(pageSize)
	if end > len(keys) {
		end = len(keys)
	}
	page := keys[start:end]

	nextBookmark := ""
	if end < len(keys) {
		nextBookmark = keys[end]
	}
	metadata := &peer.QueryResponseMetadata{
		FetchedRecordsCount: int32(len(page)),
		Bookmark:            nextBookmark,
	}
	return s.iteratorFor(page), metadata, nil
}

func (s *mockStub) iteratorFor(keys []string) *mockStateIterator {
	results := make([]*queryresult.KV, 0, len(keys))
	for _, key := range keys {
		results = append(results, &queryresult.KV{Key: key, Value: s.snapshot[key]})
	}
	return &mockStateIterator{results: results}
}

func (s *mockStub) GetHistoryForKey(key string) (shim.HistoryQueryIteratorInterface, error) {
	return &mockHistoryIterator{entries: s.history[key]}, nil
}

type mockStateIterator struct {
	results []*queryresult.KV
	pos     int
}

func (i *mockStateIterator) HasNext() bool {
	return i.pos < len(i.results)
}

func (i *mockStateIterator) Next() (*queryresult.KV, error) {
	kv := i.results[i.pos]
	i.pos++
	return kv, nil
}

func (i *mockStateIterator) Close() error { return nil }

type mockHistoryIterator struct {
	entries []*queryresult.KeyModification
	pos     int
}

func (i *mockHistoryIterator) HasNext() bool {
	return i.pos < len(i.entries)
}

func (i *mockHistoryIterator) Next() (*queryresult.KeyModification, error) {
	entry := i.entries[i.pos]
	i.pos++
	return entry, nil
}

func (i *mockHistoryIterator) Close() error { return nil }

// mockClientIdentity satisfies cid.ClientIdentity for a fixed caller.
type mockClientIdentity struct {
	id    string
	mspID string
}

func (c *mockClientIdentity) GetID() (string, error)    { return c.id, nil }
func (c *mockClientIdentity) GetMSPID() (string, error) { return c.mspID, nil }
func (c *mockClientIdentity) GetAttributeValue(string) (string, bool, error) {
	return "", false, nil
}
func (c *mockClientIdentity) AssertAttributeValue(string, string) error { return nil }
func (c *mockClientIdentity) GetX509Certificate() (*x509.Certificate, error) {
	return nil, nil
}

// Test principals. FullIDs follow the x509:: format the identity manager expects.
const (
	registrarID = "x509::CN=registrar,OU=admin,O=university.example::CN=ca.university.example"
	deanID      = "x509::CN=dean,OU=staff,O=university.example::CN=ca.university.example"
	auditorID   = "x509::CN=auditor,OU=staff,O=university.example::CN=ca.university.example"
	studentAID  = "x509::CN=alice,OU=student,O=university.example::CN=ca.university.example"
	studentBID  = "x509::CN=bob,OU=student,O=university.example::CN=ca.university.example"
	outsiderID  = "x509::CN=mallory,OU=none,O=elsewhere.example::CN=ca.elsewhere.example"

	testMSPID = "UniversityMSP"
)

// testEnv wires a contract instance to a persistent mock world state. Each
// call site picks the invoking identity via as().
type testEnv struct {
	stub     *mockStub
	contract *CredentialSmartContract
	txSeq    int
}

func newTestEnv() *testEnv {
	return &testEnv{
		stub:     newMockStub(),
		contract: &CredentialSmartContract{},
	}
}

// as returns a transaction context acting as the given identity, advancing
// the simulated transaction.
// TestStubReadsServeCommittedStateOnly pins the read semantics the contract
// is written against: within one transaction, GetState and the composite-key
// iterators never observe that transaction's own PutState calls; the writes
// become visible in the next transaction.
func TestStubReadsServeCommittedStateOnly(t *testing.T) {
	stub := newMockStub()
	stub.beginTx("txA")

	require.NoError(t, stub.PutState("k1", []byte("v1")))

	value, err := stub.GetState("k1")
	require.NoError(t, err)
	require.Nil(t, value, "uncommitted write must not be readable in the same transaction")

	stub.beginTx("txB")
	value, err = stub.GetState("k1")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)
}

func (e *testEnv) as(fullID string) *contractapi.TransactionContext {
	e.txSeq++
	e.stub.beginTx(fmt.Sprintf("tx%03d", e.txSeq))
	ctx := &contractapi.TransactionContext{}
	ctx.SetStub(e.stub)
	ctx.SetClientIdentity(&mockClientIdentity{id: fullID, mspID: testMSPID})
	return ctx
}
