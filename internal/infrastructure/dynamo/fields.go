package dynamo

// DynamoDB attribute names used in key/filter expressions across repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldEmail     = "email"
	fieldState     = "state"
	fieldUpdatedAt = "updated_at"
)
