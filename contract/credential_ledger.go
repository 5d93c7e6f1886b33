package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"credregistry/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var ledgerLogger = flogging.MustGetLogger("credregistry.ledger")

// credentialLedger is the single choke point for credential world-state
// access. All reads and writes of credential records, the content-key
// uniqueness index, the per-holder index, and the token counter go through it.
type credentialLedger struct {
	Ctx contractapi.TransactionContextInterface
}

func newCredentialLedger(ctx contractapi.TransactionContextInterface) *credentialLedger {
	return &credentialLedger{Ctx: ctx}
}

// --- Key construction ---

func (l *credentialLedger) credentialKey(tokenID uint64) (string, error) {
	key, err := l.Ctx.GetStub().CreateCompositeKey(credentialObjectType, []string{padTokenID(tokenID)})
	if err != nil {
		return "", fmt.Errorf("failed to create credential key for token %d: %w", tokenID, err)
	}
	return key, nil
}

func (l *credentialLedger) contentIndexKey(contentKey string) (string, error) {
	key, err := l.Ctx.GetStub().CreateCompositeKey(contentKeyObjectType, []string{contentKey})
	if err != nil {
		return "", fmt.Errorf("failed to create content index key: %w", err)
	}
	return key, nil
}

func (l *credentialLedger) holderIndexKey(holder string, tokenID uint64) (string, error) {
	key, err := l.Ctx.GetStub().CreateCompositeKey(holderIndexObjectType, []string{holder, padTokenID(tokenID)})
	if err != nil {
		return "", fmt.Errorf("failed to create holder index key for '%s': %w", holder, err)
	}
	return key, nil
}

func (l *credentialLedger) counterKey() (string, error) {
	key, err := l.Ctx.GetStub().CreateCompositeKey(counterObjectType, []string{"next"})
	if err != nil {
		return "", fmt.Errorf("failed to create counter key: %w", err)
	}
	return key, nil
}

// --- Counter ---

// credentialCount returns the number of credentials ever issued. Token ids are
// dense, so this is also the next id to be assigned.
func (l *credentialLedger) credentialCount() (uint64, error) {
	key, err := l.counterKey()
	if err != nil {
		return 0, err
	}
	raw, err := l.Ctx.GetStub().GetState(key)
	if err != nil {
		return 0, fmt.Errorf("failed to read credential counter: %w", err)
	}
	if raw == nil {
		return 0, nil
	}
	count, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt credential counter value '%s': %w", string(raw), err)
	}
	return count, nil
}

func (l *credentialLedger) setCredentialCount(count uint64) error {
	key, err := l.counterKey()
	if err != nil {
		return err
	}
	if err := l.Ctx.GetStub().PutState(key, []byte(strconv.FormatUint(count, 10))); err != nil {
		return fmt.Errorf("failed to write credential counter: %w", err)
	}
	return nil
}

// --- Content-key uniqueness index ---

// contentKeyExists reports whether any credential (regardless of status) was
// ever issued for this content digest.
func (l *credentialLedger) contentKeyExists(contentKey string) (bool, error) {
	key, err := l.contentIndexKey(contentKey)
	if err != nil {
		return false, err
	}
	raw, err := l.Ctx.GetStub().GetState(key)
	if err != nil {
		return false, fmt.Errorf("failed to read content index: %w", err)
	}
	return raw != nil, nil
}

// --- Record access ---

// insertCredentials assigns the next sequential token ids to the records in
// order and persists each with its content and holder index entries. The
// counter is read once and written once for the whole group: GetState never
// observes PutState writes from the current transaction, so re-reading the
// counter between inserts would hand every record the same id. Content keys
// are checked against committed state and against earlier records in the
// group; any collision fails with ErrDuplicateContent before the counter is
// written.
func (l *credentialLedger) insertCredentials(recs []*model.Credential) ([]uint64, error) {
	if len(recs) == 0 {
		return []uint64{}, nil
	}
	next, err := l.credentialCount()
	if err != nil {
		return nil, err
	}

	seenContentKeys := make(map[string]bool, len(recs))
	tokenIDs := make([]uint64, 0, len(recs))
	for i, rec := range recs {
		if seenContentKeys[rec.ContentKey] {
			return nil, fmt.Errorf("content key '%s': %w", rec.ContentKey, ErrDuplicateContent)
		}
		exists, err := l.contentKeyExists(rec.ContentKey)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("content key '%s': %w", rec.ContentKey, ErrDuplicateContent)
		}
		seenContentKeys[rec.ContentKey] = true

		tokenID := next + uint64(i)
		rec.TokenID = tokenID
		rec.ObjectType = credentialObjectType

		if err := l.putCredential(rec); err != nil {
			return nil, err
		}

		idBytes := []byte(strconv.FormatUint(tokenID, 10))

		contentKey, err := l.contentIndexKey(rec.ContentKey)
		if err != nil {
			return nil, err
		}
		if err := l.Ctx.GetStub().PutState(contentKey, idBytes); err != nil {
			return nil, fmt.Errorf("failed to write content index for token %d: %w", tokenID, err)
		}

		holderKey, err := l.holderIndexKey(rec.Holder, tokenID)
		if err != nil {
			return nil, err
		}
		if err := l.Ctx.GetStub().PutState(holderKey, idBytes); err != nil {
			return nil, fmt.Errorf("failed to write holder index for token %d: %w", tokenID, err)
		}

		tokenIDs = append(tokenIDs, tokenID)
	}

	if err := l.setCredentialCount(next + uint64(len(recs))); err != nil {
		return nil, err
	}

	ledgerLogger.Infof("insertCredentials: %d credential(s) issued (tokens %d..%d)", len(tokenIDs), next, next+uint64(len(recs))-1)
	return tokenIDs, nil
}

// getCredential fetches a credential by token id. Fails with ErrNotFound for
// ids that were never assigned.
func (l *credentialLedger) getCredential(tokenID uint64) (*model.Credential, error) {
	key, err := l.credentialKey(tokenID)
	if err != nil {
		return nil, err
	}
	raw, err := l.Ctx.GetStub().GetState(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential %d: %w", tokenID, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("token %d: %w", tokenID, ErrNotFound)
	}
	var rec model.Credential
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential %d: %w", tokenID, err)
	}
	if rec.History == nil {
		rec.History = []model.HistoryEntry{}
	}
	return &rec, nil
}

func (l *credentialLedger) putCredential(rec *model.Credential) error {
	key, err := l.credentialKey(rec.TokenID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal credential %d: %w", rec.TokenID, err)
	}
	if err := l.Ctx.GetStub().PutState(key, raw); err != nil {
		return fmt.Errorf("failed to write credential %d: %w", rec.TokenID, err)
	}
	return nil
}

// markStatus moves a credential out of ACTIVE into a terminal status.
// The transition is monotonic: a credential that already left ACTIVE fails
// with ErrAlreadyTerminal no matter which terminal status is requested.
func (l *credentialLedger) markStatus(tokenID uint64, newStatus model.CredentialStatus, actorFullID string, at time.Time) (*model.Credential, error) {
	rec, err := l.getCredential(tokenID)
	if err != nil {
		return nil, err
	}
	if rec.Status.IsTerminal() {
		return nil, fmt.Errorf("token %d is already in status '%s': %w", tokenID, rec.Status, ErrAlreadyTerminal)
	}
	rec.Status = newStatus
	rec.StatusChangedAt = at
	rec.StatusChangedBy = actorFullID
	if err := l.putCredential(rec); err != nil {
		return nil, err
	}
	ledgerLogger.Infof("markStatus: token %d -> %s by '%s'", tokenID, newStatus, actorFullID)
	return rec, nil
}

// holderTokenIDs returns the ids of every credential ever issued to the
// holder, in issuance order, regardless of current status.
func (l *credentialLedger) holderTokenIDs(holderFullID string) ([]uint64, error) {
	iterator, err := l.Ctx.GetStub().GetStateByPartialCompositeKey(holderIndexObjectType, []string{holderFullID})
	if err != nil {
		return nil, fmt.Errorf("failed to get holder index iterator for '%s': %w", holderFullID, err)
	}
	defer iterator.Close()

	tokenIDs := []uint64{}
	for iterator.HasNext() {
		entry, iterErr := iterator.Next()
		if iterErr != nil {
			return nil, fmt.Errorf("failed to iterate holder index for '%s': %w", holderFullID, iterErr)
		}
		tokenID, parseErr := strconv.ParseUint(string(entry.Value), 10, 64)
		if parseErr != nil {
			ledgerLogger.Warningf("holderTokenIDs: corrupt index value '%s' at key '%s'. Skipping.", string(entry.Value), entry.Key)
			continue
		}
		tokenIDs = append(tokenIDs, tokenID)
	}
	return tokenIDs, nil
}
