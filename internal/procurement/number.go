package procurement

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const numberAttempts = 5

// NewPONumber draws a candidate number of the form PO-<supplier>-<8 hex>.
func NewPONumber(supplierID int64) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("PO-%d-%s", supplierID, strings.ToUpper(suffix))
}
