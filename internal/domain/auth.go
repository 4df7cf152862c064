package domain

// SubjectType differentiates service tokens from operator tokens.
type SubjectType string

const (
	SubjectTypeService  SubjectType = "SERVICE"
	SubjectTypeOperator SubjectType = "OPERATOR"
)

// Role scopes what a bearer token may call.
type Role string

const (
	RoleService  Role = "service"
	RoleOperator Role = "operator"
)
