package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"credregistry/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Admin Operations ---

// BootstrapRegistry initializes the registry by making the calling identity
// the first admin, with the issuer role already granted so the deploying
// institution can start issuing immediately. Uses direct state writes because
// no admin exists yet to authorize the normal registration path. Fails if the
// registry already has any admin.
func (s *CredentialSmartContract) BootstrapRegistry(ctx contractapi.TransactionContextInterface) error {
	logger.Info("Attempting to bootstrap registry with initial admin (direct write method)...")
	im := NewIdentityManager(ctx)

	anyAdminAlreadyExists, err := im.AnyAdminExists()
	if err != nil {
		return fmt.Errorf("BootstrapRegistry: failed to check if any admin exists: %w", err)
	}
	if anyAdminAlreadyExists {
		msg := "system already has admins or is bootstrapped. BootstrapRegistry should not be re-run."
		logger.Info(msg)
		return errors.New(msg)
	}

	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("BootstrapRegistry: failed to get caller identity for bootstrap: %w", err)
	}
	callerFullID := actor.fullID
	bootstrapAlias := actor.alias
	if bootstrapAlias == "" {
		bootstrapAlias = shortNameFromFullID(callerFullID)
	}

	logger.Infof("BootstrapRegistry: Preparing to register bootstrap admin '%s' (alias: '%s') using direct state writes.", callerFullID, bootstrapAlias)

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("BootstrapRegistry: failed to get timestamp for direct state writes: %w", err)
	}

	// 1. IdentityInfo for the bootstrap admin, who is also the first issuer.
	bootstrapInfo := model.IdentityInfo{
		ObjectType:      identityObjectType,
		FullID:          callerFullID,
		ShortName:       bootstrapAlias,
		EnrollmentID:    bootstrapAlias,
		OrganizationMSP: actor.mspID,
		Roles:           []string{RoleIssuer},
		IsAdmin:         true,
		RegisteredBy:    callerFullID,
		RegisteredAt:    now,
		LastUpdatedAt:   now,
	}
	identityKey, err := im.createIdentityCompositeKey(callerFullID)
	if err != nil {
		return fmt.Errorf("BootstrapRegistry: failed to create identity key for bootstrap admin '%s': %w", callerFullID, err)
	}
	bootstrapInfoBytes, err := json.Marshal(bootstrapInfo)
	if err != nil {
		return fmt.Errorf("BootstrapRegistry: failed to marshal bootstrap admin IdentityInfo: %w", err)
	}
	if err := ctx.GetStub().PutState(identityKey, bootstrapInfoBytes); err != nil {
		return fmt.Errorf("BootstrapRegistry: failed to save bootstrap admin IdentityInfo for '%s': %w", callerFullID, err)
	}

	// 2. Alias mapping.
	aliasKey, err := im.createAliasCompositeKey(bootstrapAlias)
	if err != nil {
		return fmt.Errorf("BootstrapRegistry: failed to create alias key for bootstrap admin '%s': %w", bootstrapAlias, err)
	}
	if err := ctx.GetStub().PutState(aliasKey, []byte(callerFullID)); err != nil {
		return fmt.Errorf("BootstrapRegistry: failed to save bootstrap admin alias mapping '%s' -> '%s': %w", bootstrapAlias, callerFullID, err)
	}

	// 3. AdminFlag, which is what AnyAdminExists and IsAdmin key off.
	adminFlagKey, err := im.createAdminFlagCompositeKey(callerFullID)
	if err != nil {
		return fmt.Errorf("BootstrapRegistry: failed to create admin flag key for '%s': %w", callerFullID, err)
	}
	if err := ctx.GetStub().PutState(adminFlagKey, []byte("true")); err != nil {
		return fmt.Errorf("BootstrapRegistry: failed to set admin flag for bootstrap admin '%s': %w", callerFullID, err)
	}

	logger.Infof("BootstrapRegistry: Registry bootstrapped successfully. Identity '%s' (alias: '%s') is now an admin and issuer.", callerFullID, bootstrapAlias)
	return nil
}

// shortNameFromFullID derives a usable alias from an X.509 FullID like
// "x509::CN=admin,OU=...::CN=ca...". Falls back to the raw id when no CN is
// present.
func shortNameFromFullID(fullID string) string {
	withoutPrefix := strings.TrimPrefix(fullID, "x509::")
	subject := strings.SplitN(withoutPrefix, "::", 2)[0]
	for _, part := range strings.Split(subject, ",") {
		trimmed := strings.TrimSpace(part)
		if strings.HasPrefix(trimmed, "CN=") && len(trimmed) > len("CN=") {
			return strings.TrimPrefix(trimmed, "CN=")
		}
	}
	return fullID
}

// GetFullIDForAlias resolves an alias to the full X.509 ID it maps to.
func (s *CredentialSmartContract) GetFullIDForAlias(ctx contractapi.TransactionContextInterface, alias string) (string, error) {
	return NewIdentityManager(ctx).ResolveIdentity(alias)
}
