package model

import "time"

// CredentialStatus defines the possible states of a credential record.
// A record starts ACTIVE and moves exactly once to one of the terminal
// states; the terminal value carries who initiated the invalidation.
type CredentialStatus string

const (
	StatusActive          CredentialStatus = "ACTIVE"            // Credential is issued and valid
	StatusRevokedByIssuer CredentialStatus = "REVOKED_BY_ISSUER" // Invalidated by the issuing institution
	StatusBurnedByHolder  CredentialStatus = "BURNED_BY_HOLDER"  // Destroyed by the holder themself
)

// IsTerminal reports whether no further status transition is permitted.
func (s CredentialStatus) IsTerminal() bool {
	return s == StatusRevokedByIssuer || s == StatusBurnedByHolder
}

// Credential is the central record of the registry: one academic credential
// permanently bound to a holder identity.
type Credential struct {
	ObjectType      string           `json:"objectType"` // "Credential"
	TokenID         uint64           `json:"tokenId"`    // Sequential, assigned at issuance, starts at 0
	Holder          string           `json:"holder"`     // Identity the credential is bound to; never changes
	HolderAlias     string           `json:"holderAlias"`
	MetadataURI     string           `json:"metadataUri"` // Opaque content locator (e.g. ipfs://...)
	ContentKey      string           `json:"contentKey"`  // Digest of MetadataURI, for duplicate detection only
	IssuedBy        string           `json:"issuedBy"`
	IssuedByAlias   string           `json:"issuedByAlias"`
	IssuedAt        time.Time        `json:"issuedAt"`
	Status          CredentialStatus `json:"status"`
	StatusChangedAt time.Time        `json:"statusChangedAt"`
	StatusChangedBy string           `json:"statusChangedBy"` // Actor of the most recent status change
	History         []HistoryEntry   `json:"history"`         // Populated by VerifyCredential
}

// HistoryEntry represents one historical state of a credential record.
type HistoryEntry struct {
	TxID      string    `json:"txId"`
	Timestamp time.Time `json:"timestamp"`
	IsDelete  bool      `json:"isDelete"`
	Value     string    `json:"value"`  // Raw JSON value of the record at that time
	Status    string    `json:"status"` // Status the record held at that time
	ActorID   string    `json:"actorId"`
}

// BatchIssueEntry is one requested issuance inside an atomic batch.
type BatchIssueEntry struct {
	Holder      string `json:"holder"`
	MetadataURI string `json:"metadataUri"`
}

// PaginatedCredentialResponse is the structure returned by paginated credential queries.
type PaginatedCredentialResponse struct {
	Credentials  []*Credential `json:"credentials"`
	NextBookmark string        `json:"nextBookmark"`
	FetchedCount int32         `json:"fetchedCount"`
}

// RegistryStats summarises the registry for dashboards.
type RegistryStats struct {
	Total   uint64 `json:"total"`
	Active  uint64 `json:"active"`
	Revoked uint64 `json:"revoked"`
	Burned  uint64 `json:"burned"`
}
