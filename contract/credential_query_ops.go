package contract

import (
	"encoding/json"
	"fmt"
	"strconv"

	"credregistry/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

const (
	defaultPageSize = int32(10)
	maxPageSize     = int32(100)
)

// GetCredential returns the full stored record for a token id, including
// terminal-status details. Public read access.
func (s *CredentialSmartContract) GetCredential(ctx contractapi.TransactionContextInterface, tokenID uint64) (*model.Credential, error) {
	logger.Debugf("Chaincode Call: GetCredential for token %d", tokenID)
	rec, err := newCredentialLedger(ctx).getCredential(tokenID)
	if err != nil {
		return nil, fmt.Errorf("GetCredential: %w", err)
	}
	return rec, nil
}

// VerifyCredential returns the record enriched with its full ledger history:
// every committed version of the credential, with the transaction id and
// timestamp that wrote it. Public read access; intended for external
// verifiers who need the provenance trail, not just the current status.
func (s *CredentialSmartContract) VerifyCredential(ctx contractapi.TransactionContextInterface, tokenID uint64) (*model.Credential, error) {
	logger.Debugf("Chaincode Call: VerifyCredential for token %d", tokenID)

	ledger := newCredentialLedger(ctx)
	rec, err := ledger.getCredential(tokenID)
	if err != nil {
		return nil, fmt.Errorf("VerifyCredential: %w", err)
	}

	key, err := ledger.credentialKey(tokenID)
	if err != nil {
		return nil, fmt.Errorf("VerifyCredential: %w", err)
	}
	historyIterator, err := ctx.GetStub().GetHistoryForKey(key)
	if err != nil {
		return nil, fmt.Errorf("VerifyCredential: failed to get history for token %d: %w", tokenID, err)
	}
	defer historyIterator.Close()

	history := []model.HistoryEntry{}
	for historyIterator.HasNext() {
		mod, iterErr := historyIterator.Next()
		if iterErr != nil {
			return nil, fmt.Errorf("VerifyCredential: failed to iterate history for token %d: %w", tokenID, iterErr)
		}
		entry := model.HistoryEntry{
			TxID:     mod.TxId,
			IsDelete: mod.IsDelete,
		}
		if mod.Timestamp != nil {
			entry.Timestamp = mod.Timestamp.AsTime()
		}
		if !mod.IsDelete && len(mod.Value) > 0 {
			entry.Value = string(mod.Value)
			var version model.Credential
			if err := json.Unmarshal(mod.Value, &version); err == nil {
				entry.Status = string(version.Status)
				entry.ActorID = version.StatusChangedBy
			} else {
				logger.Warningf("VerifyCredential: could not unmarshal historic value for token %d at tx '%s': %v", tokenID, mod.TxId, err)
			}
		}
		history = append(history, entry)
	}

	rec.History = history
	return rec, nil
}

// GetHolderCredentials lists the token ids of every credential ever issued to
// the holder, in issuance order. Revoked and burned credentials are included;
// callers filter by status if they only want valid ones. Unknown holders get
// an empty list, not an error.
func (s *CredentialSmartContract) GetHolderCredentials(ctx contractapi.TransactionContextInterface, holder string) ([]uint64, error) {
	logger.Debugf("Chaincode Call: GetHolderCredentials for '%s'", holder)

	im := NewIdentityManager(ctx)
	holderFullID, _, err := resolveHolder(im, holder)
	if err != nil {
		return nil, fmt.Errorf("GetHolderCredentials: %w", err)
	}

	tokenIDs, err := newCredentialLedger(ctx).holderTokenIDs(holderFullID)
	if err != nil {
		return nil, fmt.Errorf("GetHolderCredentials: %w", err)
	}
	return tokenIDs, nil
}

// GetTotalCredentials returns how many credentials have ever been issued,
// regardless of current status.
func (s *CredentialSmartContract) GetTotalCredentials(ctx contractapi.TransactionContextInterface) (uint64, error) {
	logger.Debug("Chaincode Call: GetTotalCredentials")
	count, err := newCredentialLedger(ctx).credentialCount()
	if err != nil {
		return 0, fmt.Errorf("GetTotalCredentials: %w", err)
	}
	return count, nil
}

func parsePageSize(pageSizeStr string) (int32, error) {
	if pageSizeStr == "" {
		return defaultPageSize, nil
	}
	parsed, err := strconv.ParseInt(pageSizeStr, 10, 32)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid pageSize '%s': must be a positive integer", pageSizeStr)
	}
	if int32(parsed) > maxPageSize {
		return maxPageSize, nil
	}
	return int32(parsed), nil
}

// GetAllCredentials returns a page of credential records in token-id order.
// pageSizeStr may be empty for the default page size; bookmark comes from the
// previous page's response.
func (s *CredentialSmartContract) GetAllCredentials(ctx contractapi.TransactionContextInterface, pageSizeStr, bookmark string) (*model.PaginatedCredentialResponse, error) {
	logger.Debugf("Chaincode Call: GetAllCredentials (pageSize: '%s', bookmark: '%s')", pageSizeStr, bookmark)

	pageSize, err := parsePageSize(pageSizeStr)
	if err != nil {
		return nil, fmt.Errorf("GetAllCredentials: %w", err)
	}

	iterator, metadata, err := ctx.GetStub().GetStateByPartialCompositeKeyWithPagination(credentialObjectType, []string{}, pageSize, bookmark)
	if err != nil {
		return nil, fmt.Errorf("GetAllCredentials: failed to get credentials iterator: %w", err)
	}
	defer iterator.Close()

	credentials := []*model.Credential{}
	for iterator.HasNext() {
		queryResponse, iterErr := iterator.Next()
		if iterErr != nil {
			return nil, fmt.Errorf("GetAllCredentials: failed to iterate credentials: %w", iterErr)
		}
		var rec model.Credential
		if err := json.Unmarshal(queryResponse.Value, &rec); err != nil {
			logger.Warningf("GetAllCredentials: failed to unmarshal credential at key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		if rec.History == nil {
			rec.History = []model.HistoryEntry{}
		}
		credentials = append(credentials, &rec)
	}

	response := &model.PaginatedCredentialResponse{
		Credentials:  credentials,
		FetchedCount: int32(len(credentials)),
	}
	if metadata != nil {
		response.NextBookmark = metadata.Bookmark
	}
	return response, nil
}

// GetCredentialsByStatus returns a page of credentials currently in the given
// status. The page size bounds how many ledger records are scanned, not how
// many matches are returned, so pages may come back short while a bookmark
// remains.
func (s *CredentialSmartContract) GetCredentialsByStatus(ctx contractapi.TransactionContextInterface, statusToQuery, pageSizeStr, bookmark string) (*model.PaginatedCredentialResponse, error) {
	logger.Debugf("Chaincode Call: GetCredentialsByStatus (status: '%s', pageSize: '%s', bookmark: '%s')", statusToQuery, pageSizeStr, bookmark)

	status := model.CredentialStatus(statusToQuery)
	switch status {
	case model.StatusActive, model.StatusRevokedByIssuer, model.StatusBurnedByHolder:
	default:
		return nil, fmt.Errorf("GetCredentialsByStatus: unknown status '%s'", statusToQuery)
	}

	pageSize, err := parsePageSize(pageSizeStr)
	if err != nil {
		return nil, fmt.Errorf("GetCredentialsByStatus: %w", err)
	}

	iterator, metadata, err := ctx.GetStub().GetStateByPartialCompositeKeyWithPagination(credentialObjectType, []string{}, pageSize, bookmark)
	if err != nil {
		return nil, fmt.Errorf("GetCredentialsByStatus: failed to get credentials iterator: %w", err)
	}
	defer iterator.Close()

	credentials := []*model.Credential{}
	for iterator.HasNext() {
		queryResponse, iterErr := iterator.Next()
		if iterErr != nil {
			return nil, fmt.Errorf("GetCredentialsByStatus: failed to iterate credentials: %w", iterErr)
		}
		var rec model.Credential
		if err := json.Unmarshal(queryResponse.Value, &rec); err != nil {
			logger.Warningf("GetCredentialsByStatus: failed to unmarshal credential at key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		if rec.Status != status {
			continue
		}
		if rec.History == nil {
			rec.History = []model.HistoryEntry{}
		}
		credentials = append(credentials, &rec)
	}

	response := &model.PaginatedCredentialResponse{
		Credentials:  credentials,
		FetchedCount: int32(len(credentials)),
	}
	if metadata != nil {
		response.NextBookmark = metadata.Bookmark
	}
	return response, nil
}

// GetRegistryStats scans the full credential space and tallies per-status
// counts. Intended for dashboards; not cheap on large ledgers.
func (s *CredentialSmartContract) GetRegistryStats(ctx contractapi.TransactionContextInterface) (*model.RegistryStats, error) {
	logger.Debug("Chaincode Call: GetRegistryStats")

	iterator, err := ctx.GetStub().GetStateByPartialCompositeKey(credentialObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("GetRegistryStats: failed to get credentials iterator: %w", err)
	}
	defer iterator.Close()

	stats := &model.RegistryStats{}
	for iterator.HasNext() {
		queryResponse, iterErr := iterator.Next()
		if iterErr != nil {
			return nil, fmt.Errorf("GetRegistryStats: failed to iterate credentials: %w", iterErr)
		}
		var rec model.Credential
		if err := json.Unmarshal(queryResponse.Value, &rec); err != nil {
			logger.Warningf("GetRegistryStats: failed to unmarshal credential at key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		stats.Total++
		switch rec.Status {
		case model.StatusActive:
			stats.Active++
		case model.StatusRevokedByIssuer:
			stats.Revoked++
		case model.StatusBurnedByHolder:
			stats.Burned++
		}
	}
	return stats, nil
}
