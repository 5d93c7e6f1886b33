package contract

import (
	"encoding/json"
	"strconv"
	"testing"

	"credregistry/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchJSON(t *testing.T, entries []model.BatchIssueEntry) string {
	t.Helper()
	raw, err := json.Marshal(entries)
	require.NoError(t, err)
	return string(raw)
}

func TestIssueCredentialBatch(t *testing.T) {
	env := issuerEnv(t)

	entries := []model.BatchIssueEntry{
		{Holder: studentAID, MetadataURI: "ipfs://QmDegree2025-001"},
		{Holder: studentBID, MetadataURI: "ipfs://QmDegree2025-002"},
		{Holder: studentAID, MetadataURI: "ipfs://QmDegree2025-003"},
	}
	tokenIDs, err := env.contract.IssueCredentialBatch(env.as(deanID), batchJSON(t, entries))
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2}, tokenIDs, "ids assigned in entry order")

	total, err := env.contract.GetTotalCredentials(env.as(outsiderID))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), total)

	for i, tokenID := range tokenIDs {
		rec, err := env.contract.GetCredential(env.as(outsiderID), tokenID)
		require.NoError(t, err)
		assert.Equal(t, entries[i].Holder, rec.Holder)
		assert.Equal(t, entries[i].MetadataURI, rec.MetadataURI)
		assert.Equal(t, model.StatusActive, rec.Status)
	}

	event := env.stub.lastEvent()
	require.NotNil(t, event)
	assert.Equal(t, "CredentialBatchIssued", event.name, "one event for the whole batch")

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(event.payload, &payload))
	assert.Equal(t, float64(3), payload["count"])
}

// Ids must stay dense even though every GetState inside the batch transaction
// observes only pre-transaction state: the counter is read once, so records
// cannot collapse onto one id or overwrite each other.
func TestIssueCredentialBatchAssignsDistinctIDs(t *testing.T) {
	env := issuerEnv(t)

	_, err := env.contract.IssueCredential(env.as(deanID), studentAID, "ipfs://QmSingle-1")
	require.NoError(t, err)
	_, err = env.contract.IssueCredential(env.as(deanID), studentBID, "ipfs://QmSingle-2")
	require.NoError(t, err)

	entries := []model.BatchIssueEntry{
		{Holder: studentAID, MetadataURI: "ipfs://QmBatch-1"},
		{Holder: studentBID, MetadataURI: "ipfs://QmBatch-2"},
		{Holder: studentAID, MetadataURI: "ipfs://QmBatch-3"},
	}
	tokenIDs, err := env.contract.IssueCredentialBatch(env.as(deanID), batchJSON(t, entries))
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3, 4}, tokenIDs, "batch continues the committed sequence")

	total, err := env.contract.GetTotalCredentials(env.as(outsiderID))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), total, "count grows by the full batch size")

	// Every id resolves to its own record; nothing was overwritten.
	for i, tokenID := range tokenIDs {
		rec, err := env.contract.GetCredential(env.as(outsiderID), tokenID)
		require.NoError(t, err)
		assert.Equal(t, entries[i].MetadataURI, rec.MetadataURI)
	}
}

func TestIssueCredentialBatchRequiresIssuerRole(t *testing.T) {
	env := issuerEnv(t)

	entries := []model.BatchIssueEntry{{Holder: studentAID, MetadataURI: "ipfs://QmDegree"}}
	_, err := env.contract.IssueCredentialBatch(env.as(outsiderID), batchJSON(t, entries))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestIssueCredentialBatchAllOrNothing(t *testing.T) {
	env := issuerEnv(t)

	// Seed one credential so the batch's middle entry collides with the ledger.
	_, err := env.contract.IssueCredential(env.as(deanID), studentAID, "ipfs://QmExisting")
	require.NoError(t, err)

	entries := []model.BatchIssueEntry{
		{Holder: studentAID, MetadataURI: "ipfs://QmNew-1"},
		{Holder: studentBID, MetadataURI: "ipfs://QmExisting"},
		{Holder: studentBID, MetadataURI: "ipfs://QmNew-2"},
	}
	_, err = env.contract.IssueCredentialBatch(env.as(deanID), batchJSON(t, entries))
	require.ErrorIs(t, err, ErrBatchValidationFailed)

	// Nothing was written and no ids were consumed.
	total, err := env.contract.GetTotalCredentials(env.as(outsiderID))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)

	tokenID, err := env.contract.IssueCredential(env.as(deanID), studentBID, "ipfs://QmNext")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tokenID, "failed batch must not advance the id counter")
}

func TestIssueCredentialBatchRejectsIntraBatchDuplicate(t *testing.T) {
	env := issuerEnv(t)

	entries := []model.BatchIssueEntry{
		{Holder: studentAID, MetadataURI: "ipfs://QmSame"},
		{Holder: studentBID, MetadataURI: "ipfs://QmSame"},
	}
	_, err := env.contract.IssueCredentialBatch(env.as(deanID), batchJSON(t, entries))
	require.ErrorIs(t, err, ErrBatchValidationFailed)
	assert.Contains(t, err.Error(), "entry 1")
}

func TestIssueCredentialBatchRejectsInvalidHolder(t *testing.T) {
	env := issuerEnv(t)

	entries := []model.BatchIssueEntry{
		{Holder: studentAID, MetadataURI: "ipfs://QmOk"},
		{Holder: "0x0000000000000000000000000000000000000000", MetadataURI: "ipfs://QmBad"},
	}
	_, err := env.contract.IssueCredentialBatch(env.as(deanID), batchJSON(t, entries))
	require.ErrorIs(t, err, ErrBatchValidationFailed)

	total, err := env.contract.GetTotalCredentials(env.as(outsiderID))
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestIssueCredentialBatchRejectsEmptyAndMalformed(t *testing.T) {
	env := issuerEnv(t)

	_, err := env.contract.IssueCredentialBatch(env.as(deanID), "[]")
	require.ErrorIs(t, err, ErrBatchValidationFailed)

	_, err = env.contract.IssueCredentialBatch(env.as(deanID), "{not json")
	require.ErrorIs(t, err, ErrBatchValidationFailed)
}

func TestIssueCredentialBatchRejectsOversize(t *testing.T) {
	env := issuerEnv(t)

	entries := make([]model.BatchIssueEntry, maxBatchEntries+1)
	for i := range entries {
		entries[i] = model.BatchIssueEntry{Holder: studentAID, MetadataURI: "ipfs://QmBulk-" + strconv.Itoa(i)}
	}
	_, err := env.contract.IssueCredentialBatch(env.as(deanID), batchJSON(t, entries))
	require.ErrorIs(t, err, ErrBatchValidationFailed)
	assert.Contains(t, err.Error(), "exceeds maximum")
}
