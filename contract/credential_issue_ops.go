package contract

import (
	"encoding/json"
	"fmt"
	"time"

	"credregistry/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// IssueCredential mints a new soulbound credential bound permanently to the
// holder. Only identities holding the issuer role may call this; admin status
// alone does not grant issuance rights. Returns the assigned token id.
func (s *CredentialSmartContract) IssueCredential(ctx contractapi.TransactionContextInterface, holder, metadataURI string) (uint64, error) {
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return 0, fmt.Errorf("IssueCredential: %w", err)
	}
	logger.Infof("Chaincode Call: IssueCredential by '%s' (alias '%s') for holder '%s'", actor.fullID, actor.alias, holder)

	im := NewIdentityManager(ctx)
	if err := im.RequireIssuer(); err != nil {
		return 0, fmt.Errorf("IssueCredential: %w", err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return 0, fmt.Errorf("IssueCredential: %w", err)
	}

	rec, err := s.buildCredential(im, actor, holder, metadataURI, now)
	if err != nil {
		return 0, fmt.Errorf("IssueCredential: %w", err)
	}
	if _, err := newCredentialLedger(ctx).insertCredentials([]*model.Credential{rec}); err != nil {
		return 0, fmt.Errorf("IssueCredential: %w", err)
	}

	s.emitCredentialEvent(ctx, "CredentialIssued", map[string]interface{}{
		"tokenId":     rec.TokenID,
		"holder":      rec.Holder,
		"issuedBy":    actor.fullID,
		"metadataUri": rec.MetadataURI,
		"timestamp":   now.Format(time.RFC3339),
	})
	logger.Infof("IssueCredential: token %d issued successfully by '%s'", rec.TokenID, actor.fullID)
	return rec.TokenID, nil
}

// buildCredential validates one issuance request and constructs the record
// without touching the ledger. Shared by single and batch issuance; writing,
// authorization, and event emission are the caller's job.
func (s *CredentialSmartContract) buildCredential(im *IdentityManager, actor *actorInfo, holder, metadataURI string, now time.Time) (*model.Credential, error) {
	if err := validateRequiredString(metadataURI, "metadataUri", maxLocatorLength); err != nil {
		return nil, err
	}
	holderFullID, holderAlias, err := resolveHolder(im, holder)
	if err != nil {
		return nil, err
	}

	return &model.Credential{
		Holder:          holderFullID,
		HolderAlias:     holderAlias,
		MetadataURI:     metadataURI,
		ContentKey:      contentKeyForLocator(metadataURI),
		IssuedBy:        actor.fullID,
		IssuedByAlias:   actor.alias,
		IssuedAt:        now,
		Status:          model.StatusActive,
		StatusChangedAt: now,
		StatusChangedBy: actor.fullID,
		History:         []model.HistoryEntry{},
	}, nil
}

// IssueCredentialBatch issues several credentials atomically. The JSON
// argument is an array of {holder, metadataUri} entries. Every entry is
// validated before anything is written: one bad entry fails the whole call
// and no token id is assigned. On success, ids are assigned in entry order
// and a single CredentialBatchIssued event carries all of them; Fabric keeps
// one event per transaction, so per-record events would be lost anyway.
func (s *CredentialSmartContract) IssueCredentialBatch(ctx contractapi.TransactionContextInterface, entriesJSON string) ([]uint64, error) {
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("IssueCredentialBatch: %w", err)
	}
	logger.Infof("Chaincode Call: IssueCredentialBatch by '%s' (alias '%s')", actor.fullID, actor.alias)

	im := NewIdentityManager(ctx)
	if err := im.RequireIssuer(); err != nil {
		return nil, fmt.Errorf("IssueCredentialBatch: %w", err)
	}

	var entries []model.BatchIssueEntry
	if err := json.Unmarshal([]byte(entriesJSON), &entries); err != nil {
		return nil, fmt.Errorf("IssueCredentialBatch: invalid entries JSON: %v: %w", err, ErrBatchValidationFailed)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("IssueCredentialBatch: batch must contain at least one entry: %w", ErrBatchValidationFailed)
	}
	if len(entries) > maxBatchEntries {
		return nil, fmt.Errorf("IssueCredentialBatch: batch size %d exceeds maximum of %d: %w", len(entries), maxBatchEntries, ErrBatchValidationFailed)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("IssueCredentialBatch: %w", err)
	}

	// Pre-validate every entry before the first write. Content keys must be
	// unique against the ledger and within the batch itself.
	ledger := newCredentialLedger(ctx)
	seenContentKeys := make(map[string]int)
	recs := make([]*model.Credential, 0, len(entries))
	for i, entry := range entries {
		rec, err := s.buildCredential(im, actor, entry.Holder, entry.MetadataURI, now)
		if err != nil {
			return nil, fmt.Errorf("IssueCredentialBatch: entry %d: %v: %w", i, err, ErrBatchValidationFailed)
		}
		if firstIdx, dup := seenContentKeys[rec.ContentKey]; dup {
			return nil, fmt.Errorf("IssueCredentialBatch: entry %d duplicates content of entry %d: %w", i, firstIdx, ErrBatchValidationFailed)
		}
		seenContentKeys[rec.ContentKey] = i
		exists, err := ledger.contentKeyExists(rec.ContentKey)
		if err != nil {
			return nil, fmt.Errorf("IssueCredentialBatch: entry %d: %w", i, err)
		}
		if exists {
			return nil, fmt.Errorf("IssueCredentialBatch: entry %d: credential already exists for this content: %w", i, ErrBatchValidationFailed)
		}
		recs = append(recs, rec)
	}

	// Single ledger call: the counter is read once, ids are assigned
	// contiguously in memory, and the counter is written once.
	tokenIDs, err := ledger.insertCredentials(recs)
	if err != nil {
		// Pre-validation should make this unreachable; failing the
		// transaction here still discards every write in the batch.
		return nil, fmt.Errorf("IssueCredentialBatch: %w", err)
	}

	s.emitCredentialEvent(ctx, "CredentialBatchIssued", map[string]interface{}{
		"tokenIds":  tokenIDs,
		"count":     len(tokenIDs),
		"issuedBy":  actor.fullID,
		"timestamp": now.Format(time.RFC3339),
	})
	logger.Infof("IssueCredentialBatch: %d credentials issued by '%s' (tokens %d..%d)", len(tokenIDs), actor.fullID, tokenIDs[0], tokenIDs[len(tokenIDs)-1])
	return tokenIDs, nil
}
