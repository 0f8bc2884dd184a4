package dynamo

// DynamoDB attribute names used in keys and expressions across the repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldPK         = "pk"
	fieldLocalID    = "local_id"
	fieldExternalID = "external_id"
	fieldEntryID    = "entry_id"
	fieldTimestamp  = "timestamp"
	fieldUpdatedAt  = "updated_at"
	fieldUpdatedBy  = "updated_by"
)

// Key prefixes for the single-table bijection layout of the bindings
// table: the main item is keyed by the local account, the claim item
// reserves the external account. Writing both in one transaction with
// existence conditions is what enforces the bijection.
const (
	localKeyPrefix    = "local#"
	externalKeyPrefix = "ext#"
)
