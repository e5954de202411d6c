package types

import (
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/teris-io/shortid"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex inv_0ujsswThIGTUYm2K8FjOOfXtY1K
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

var (
	sidGenerator *shortid.Shortid
	once         sync.Once
)

func initializeSID() {
	var err error
	sidGenerator, err = shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		panic("failed to initialize shortid generator: " + err.Error())
	}
}

// GenerateInvoiceNumber returns a human readable invoice number,
// e.g. `INV-XY2A8Q1B`. ULIDs stay the canonical ids; this is only for
// display on invoices and receipts.
func GenerateInvoiceNumber() string {
	once.Do(initializeSID)

	id, err := sidGenerator.Generate()
	if err != nil {
		return ""
	}
	id = strings.ReplaceAll(id, "-", "")
	return fmt.Sprintf("INV-%s", strings.ToUpper(id))
}

const (
	UUID_PREFIX_PLAN           = "plan"
	UUID_PREFIX_SUBSCRIPTION   = "subs"
	UUID_PREFIX_INVOICE        = "inv"
	UUID_PREFIX_PAYMENT_METHOD = "pm"
	UUID_PREFIX_USAGE_RECORD   = "usage"
	UUID_PREFIX_SETTLEMENT     = "stl"
	UUID_PREFIX_REQUEST        = "req"
)
