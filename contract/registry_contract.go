package contract

import (
	"encoding/json"
	"errors"
	"fmt"

	"credregistry/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var logger = flogging.MustGetLogger("credregistry.registrycontract")

// credentialObjectType is used for composite keys and as a 'docType' for CouchDB queries.
const credentialObjectType = "Credential"

// Object types for the registry's secondary indexes.
const (
	contentKeyObjectType  = "ContentKey"        // Maps content digest -> token id. Global uniqueness index.
	holderIndexObjectType = "HolderCredential"  // [holder, padded token id] -> token id. Insertion-order holder index.
	counterObjectType     = "CredentialCounter" // Single key holding the next token id.
)

// Constants for input validation and limits
const (
	maxStringInputLength = 256
	maxLocatorLength     = 512 // Content locators (ipfs:// URIs and similar)
	maxBatchEntries      = 50
)

// CredentialSmartContract manages soulbound academic credentials: issuance,
// revocation, holder burn, and the read-only verification surface.
// @contract:CredentialSmartContract
type CredentialSmartContract struct {
	contractapi.Contract
}

// actorInfo holds commonly needed details about the transaction invoker.
type actorInfo struct {
	fullID string
	alias  string
	mspID  string
}

// Instantiate is called during chaincode instantiation.
func (s *CredentialSmartContract) Instantiate(ctx contractapi.TransactionContextInterface) {
	logger.Info("CredentialSmartContract Instantiated/Upgraded")
}

// --- Identity & Role Management Wrappers (Delegating to IdentityManager) ---

func (s *CredentialSmartContract) RegisterIdentity(ctx contractapi.TransactionContextInterface, targetFullID, shortName, enrollmentID string) error {
	logger.Infof("Chaincode Call: RegisterIdentity for '%s' with alias '%s'", targetFullID, shortName)
	return NewIdentityManager(ctx).RegisterIdentity(targetFullID, shortName, enrollmentID)
}

func (s *CredentialSmartContract) GrantRoleToIdentity(ctx contractapi.TransactionContextInterface, identityOrAlias, role string) error {
	logger.Infof("Chaincode Call: GrantRole '%s' to '%s'", role, identityOrAlias)
	return NewIdentityManager(ctx).GrantRole(identityOrAlias, role)
}

func (s *CredentialSmartContract) RevokeRoleFromIdentity(ctx contractapi.TransactionContextInterface, identityOrAlias, role string) error {
	logger.Infof("Chaincode Call: RevokeRole '%s' from '%s'", role, identityOrAlias)
	return NewIdentityManager(ctx).RevokeRole(identityOrAlias, role)
}

func (s *CredentialSmartContract) MakeIdentityAdmin(ctx contractapi.TransactionContextInterface, identityOrAlias string) error {
	logger.Infof("Chaincode Call: MakeAdmin for '%s'", identityOrAlias)
	return NewIdentityManager(ctx).MakeAdmin(identityOrAlias)
}

func (s *CredentialSmartContract) RemoveIdentityAdmin(ctx contractapi.TransactionContextInterface, identityOrAlias string) error {
	logger.Infof("Chaincode Call: RemoveAdmin for '%s'", identityOrAlias)
	return NewIdentityManager(ctx).RemoveAdmin(identityOrAlias)
}

// HasRole is a pure query: does the identity hold the role. Never fails for
// unknown identities; they simply hold no roles.
func (s *CredentialSmartContract) HasRole(ctx contractapi.TransactionContextInterface, identityOrAlias, role string) (bool, error) {
	logger.Debugf("Chaincode Call: HasRole '%s' for '%s'", role, identityOrAlias)
	return NewIdentityManager(ctx).HasRole(identityOrAlias, role)
}

// IsRegistryAdmin reports whether the identity holds admin status.
func (s *CredentialSmartContract) IsRegistryAdmin(ctx contractapi.TransactionContextInterface, identityOrAlias string) (bool, error) {
	logger.Debugf("Chaincode Call: IsRegistryAdmin for '%s'", identityOrAlias)
	return NewIdentityManager(ctx).IsAdmin(identityOrAlias)
}

func (s *CredentialSmartContract) GetIdentityDetails(ctx contractapi.TransactionContextInterface, identityOrAlias string) (*model.IdentityInfo, error) {
	logger.Debugf("Chaincode Call: GetIdentityDetails for '%s'", identityOrAlias)
	im := NewIdentityManager(ctx)
	isCallerAdmin, err := im.IsCurrentUserAdmin()
	if err != nil {
		return nil, fmt.Errorf("GetIdentityDetails: failed to check admin status: %w", err)
	}

	if !isCallerAdmin {
		callerFullID, err := im.GetCurrentIdentityFullID()
		if err != nil {
			return nil, fmt.Errorf("GetIdentityDetails: failed to get caller's FullID: %w", err)
		}
		targetFullID, err := im.ResolveIdentity(identityOrAlias)
		if err != nil {
			return nil, fmt.Errorf("GetIdentityDetails: failed to resolve target identity '%s': %w", identityOrAlias, err)
		}
		if callerFullID != targetFullID {
			return nil, errors.New("unauthorized: only admins or the identity owner can get these details")
		}
	}
	return im.GetIdentityInfo(identityOrAlias)
}

func (s *CredentialSmartContract) GetAllIdentities(ctx contractapi.TransactionContextInterface) ([]model.IdentityInfo, error) {
	logger.Debug("Chaincode Call: GetAllIdentities")
	return NewIdentityManager(ctx).GetAllRegisteredIdentities()
}

// GetAllAliases returns a list of all registered aliases (shortNames) in the system.
// This is a public function that doesn't require admin privileges.
func (s *CredentialSmartContract) GetAllAliases(ctx contractapi.TransactionContextInterface) ([]string, error) {
	logger.Debug("Chaincode Call: GetAllAliases (public access)")

	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(identityObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("GetAllAliases: failed to get identities iterator: %w", err)
	}
	defer resultsIterator.Close()

	aliases := []string{}
	aliasSet := make(map[string]bool)

	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("GetAllAliases: Failed to get next identity from iterator: %v. Skipping.", iterErr)
			continue
		}

		var idInfo model.IdentityInfo
		if err := json.Unmarshal(queryResponse.Value, &idInfo); err != nil {
			logger.Warningf("GetAllAliases: Failed to unmarshal identity data for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}

		if idInfo.ShortName != "" && !aliasSet[idInfo.ShortName] {
			aliases = append(aliases, idInfo.ShortName)
			aliasSet[idInfo.ShortName] = true
		}
	}

	logger.Infof("GetAllAliases: Returning %d unique aliases", len(aliases))
	return aliases, nil // Will be [] if empty, not null
}
