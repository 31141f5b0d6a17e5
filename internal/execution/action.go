package execution

import "github.com/google/uuid"

func NewActionID() string {
	return "op_" + uuid.NewString()
}
