package contract

import (
	"errors"
	"fmt"
	"time"

	"credregistry/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// RevokeCredential marks an active credential as revoked by its issuer side.
// Callable by issuers and admins. The transition is permanent: a revoked or
// burned credential cannot be revoked again or reactivated.
func (s *CredentialSmartContract) RevokeCredential(ctx contractapi.TransactionContextInterface, tokenID uint64) error {
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("RevokeCredential: %w", err)
	}
	logger.Infof("Chaincode Call: RevokeCredential for token %d by '%s' (alias '%s')", tokenID, actor.fullID, actor.alias)

	im := NewIdentityManager(ctx)
	if err := im.RequireIssuerOrAdmin(); err != nil {
		return fmt.Errorf("RevokeCredential: %w", err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("RevokeCredential: %w", err)
	}

	rec, err := newCredentialLedger(ctx).markStatus(tokenID, model.StatusRevokedByIssuer, actor.fullID, now)
	if err != nil {
		return fmt.Errorf("RevokeCredential: %w", err)
	}

	s.emitCredentialEvent(ctx, "CredentialRevoked", map[string]interface{}{
		"tokenId":   rec.TokenID,
		"holder":    rec.Holder,
		"revokedBy": actor.fullID,
		"timestamp": now.Format(time.RFC3339),
	})
	logger.Infof("RevokeCredential: token %d revoked by '%s'", tokenID, actor.fullID)
	return nil
}

// BurnCredential lets the credential's holder permanently destroy their own
// record's validity. Only the holder may burn; issuers and admins cannot burn
// on a holder's behalf.
func (s *CredentialSmartContract) BurnCredential(ctx contractapi.TransactionContextInterface, tokenID uint64) error {
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("BurnCredential: %w", err)
	}
	logger.Infof("Chaincode Call: BurnCredential for token %d by '%s' (alias '%s')", tokenID, actor.fullID, actor.alias)

	ledger := newCredentialLedger(ctx)
	rec, err := ledger.getCredential(tokenID)
	if err != nil {
		return fmt.Errorf("BurnCredential: %w", err)
	}
	if rec.Holder != actor.fullID {
		return fmt.Errorf("BurnCredential: '%s' is not the holder of token %d: %w", actor.fullID, tokenID, ErrUnauthorized)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("BurnCredential: %w", err)
	}

	if _, err := ledger.markStatus(tokenID, model.StatusBurnedByHolder, actor.fullID, now); err != nil {
		return fmt.Errorf("BurnCredential: %w", err)
	}

	s.emitCredentialEvent(ctx, "CredentialBurned", map[string]interface{}{
		"tokenId":   tokenID,
		"holder":    rec.Holder,
		"timestamp": now.Format(time.RFC3339),
	})
	logger.Infof("BurnCredential: token %d burned by its holder '%s'", tokenID, actor.fullID)
	return nil
}

// IsCredentialValid answers the single-bool verification question: does the
// token id name a credential that is currently ACTIVE. Token ids that were
// never assigned, or credentials that were revoked or burned, yield false
// rather than an error.
func (s *CredentialSmartContract) IsCredentialValid(ctx contractapi.TransactionContextInterface, tokenID uint64) (bool, error) {
	logger.Debugf("Chaincode Call: IsCredentialValid for token %d", tokenID)

	rec, err := newCredentialLedger(ctx).getCredential(tokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("IsCredentialValid: %w", err)
	}
	return rec.Status == model.StatusActive, nil
}
