package domain

// Operator is an eligible account from the agent directory. Email and Name
// come from directory attributes and may be absent.
type Operator struct {
	ID    string  `json:"operatorId" yaml:"operatorId"`
	Email *string `json:"email,omitempty" yaml:"email"`
	Name  *string `json:"name,omitempty" yaml:"name"`
	Group string  `json:"group" yaml:"group"`
}

// HasEmail reports whether the operator has a resolvable contact address.
func (o Operator) HasEmail() bool {
	return o.Email != nil && *o.Email != ""
}
