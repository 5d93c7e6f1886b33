package contract

import (
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// Credentials are soulbound: bound to their holder at issuance, forever.
// The transfer entry points exist so that clients built against ERC-721-style
// interfaces get an explicit, uniform rejection instead of an unknown-function
// error. They never inspect the credential and never mutate state.

// TransferCredential always fails. The holder of a credential cannot change.
func (s *CredentialSmartContract) TransferCredential(ctx contractapi.TransactionContextInterface, from, to string, tokenID uint64) error {
	logger.Infof("Chaincode Call: TransferCredential rejected (token %d, from '%s', to '%s')", tokenID, from, to)
	return fmt.Errorf("TransferCredential: token %d: %w", tokenID, ErrNonTransferable)
}

// SafeTransferCredential always fails, same as TransferCredential.
func (s *CredentialSmartContract) SafeTransferCredential(ctx contractapi.TransactionContextInterface, from, to string, tokenID uint64) error {
	logger.Infof("Chaincode Call: SafeTransferCredential rejected (token %d, from '%s', to '%s')", tokenID, from, to)
	return fmt.Errorf("SafeTransferCredential: token %d: %w", tokenID, ErrNonTransferable)
}
