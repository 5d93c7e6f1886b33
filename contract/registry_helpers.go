package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Helper: Actor Information ---

// getCurrentActorInfo retrieves the invoker's FullID, registered alias (if any),
// and MSP ID. The alias lookup is best-effort; unregistered callers simply have
// an empty alias.
func (s *CredentialSmartContract) getCurrentActorInfo(ctx contractapi.TransactionContextInterface) (*actorInfo, error) {
	im := NewIdentityManager(ctx)
	fullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return nil, fmt.Errorf("getCurrentActorInfo: failed to get current identity FullID: %w", err)
	}

	alias := ""
	if idInfo, infoErr := im.GetIdentityInfo(fullID); infoErr == nil && idInfo != nil {
		alias = idInfo.ShortName
	} else if infoErr != nil {
		logger.Debugf("getCurrentActorInfo: no registered identity info for '%s': %v", fullID, infoErr)
	}

	mspID, err := ctx.GetClientIdentity().GetMSPID()
	if err != nil {
		logger.Warningf("getCurrentActorInfo: could not get MSP ID for '%s': %v", fullID, err)
		mspID = "UnknownMSP"
	}

	return &actorInfo{fullID: fullID, alias: alias, mspID: mspID}, nil
}

// getCurrentTxTimestamp returns the transaction timestamp from the stub,
// ensuring deterministic time across all endorsing peers.
func (s *CredentialSmartContract) getCurrentTxTimestamp(ctx contractapi.TransactionContextInterface) (time.Time, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

// --- Helper: Input Validation ---

func validateRequiredString(value, fieldName string, maxLength int) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("field '%s' is required and cannot be empty", fieldName)
	}
	if len(trimmed) > maxLength {
		return fmt.Errorf("field '%s' exceeds maximum length of %d characters", fieldName, maxLength)
	}
	return nil
}

// isZeroIdentity reports whether the holder string is a null/zero placeholder:
// empty after trimming, or an all-zero hex string like "0x0000...". Issuing to
// such a holder would produce a credential nobody can ever burn.
func isZeroIdentity(holder string) bool {
	trimmed := strings.TrimSpace(holder)
	if trimmed == "" {
		return true
	}
	hexPart := strings.TrimPrefix(strings.ToLower(trimmed), "0x")
	if hexPart == "" {
		return true
	}
	for _, c := range hexPart {
		if c != '0' {
			return false
		}
	}
	return true
}

// resolveHolder validates a holder reference and resolves it to a FullID plus
// registered alias if one exists. Holders do not need to be registered
// identities; an unknown reference is used verbatim with an empty alias.
func resolveHolder(im *IdentityManager, holder string) (fullID string, alias string, err error) {
	trimmed := strings.TrimSpace(holder)
	if isZeroIdentity(trimmed) {
		return "", "", fmt.Errorf("holder '%s': %w", holder, ErrInvalidHolder)
	}
	if err := validateRequiredString(trimmed, "holder", maxStringInputLength); err != nil {
		return "", "", fmt.Errorf("%v: %w", err, ErrInvalidHolder)
	}

	resolved, resolveErr := im.ResolveIdentity(trimmed)
	if resolveErr != nil {
		if errors.Is(resolveErr, ErrIdentityNotFound) {
			// Not a registered alias; treat the trimmed reference as the FullID.
			return trimmed, "", nil
		}
		return "", "", resolveErr
	}
	if idInfo, infoErr := im.getIdentityInfoByFullID(resolved); infoErr == nil && idInfo != nil {
		return resolved, idInfo.ShortName, nil
	}
	return resolved, "", nil
}

// contentKeyForLocator derives the content digest used for the global
// duplicate-issuance check: SHA-256 of the trimmed locator, hex encoded.
func contentKeyForLocator(metadataURI string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(metadataURI)))
	return hex.EncodeToString(sum[:])
}

// padTokenID renders a token id with fixed-width zero padding so that
// lexicographic composite-key iteration matches numeric issuance order.
func padTokenID(tokenID uint64) string {
	return fmt.Sprintf("%020d", tokenID)
}

// --- Helper: Event Emission ---

// emitCredentialEvent marshals the payload and sets it as the transaction
// event. Event failures are logged but never fail the transaction.
func (s *CredentialSmartContract) emitCredentialEvent(ctx contractapi.TransactionContextInterface, eventName string, payload map[string]interface{}) {
	eventPayload, err := json.Marshal(payload)
	if err != nil {
		logger.Warningf("emitCredentialEvent: failed to marshal payload for event '%s': %v", eventName, err)
		return
	}
	if err := ctx.GetStub().SetEvent(eventName, eventPayload); err != nil {
		logger.Warningf("emitCredentialEvent: failed to set event '%s': %v", eventName, err)
	}
}
