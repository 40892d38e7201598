package event

import (
	"fmt"
	"time"
)

// TimeFormat is the timestamp layout used at the start of each line
const TimeFormat = "2006-01-02 15:04:05"

// The order IDs stamped on each entry fall in this range, inclusive
const (
	MinOrderID = 1000
	MaxOrderID = 9999
)

type Kind string

const (
	OrderProcessed Kind = "order_processed"
	PaymentFailure Kind = "payment_failure"
	OutOfStock     Kind = "out_of_stock"
)

// IsError reports whether the event counts towards total_errors
func (k Kind) IsError() bool {
	return k == PaymentFailure || k == OutOfStock
}

// Status is the order outcome reported on traces
func (k Kind) Status() string {
	switch k {
	case OrderProcessed:
		return "success"
	case PaymentFailure:
		return "payment_failed"
	case OutOfStock:
		return "out_of_stock"
	default:
		return "unknown"
	}
}

type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// A Template is one of the fixed business events we know how to emit
type Template struct {
	Kind    Kind
	Level   Level
	Message string
}

// Templates is the full set of events, in selection order
var Templates = []Template{
	{Kind: OrderProcessed, Level: LevelInfo, Message: "Order processed successfully"},
	{Kind: PaymentFailure, Level: LevelError, Message: "Payment failed for order"},
	{Kind: OutOfStock, Level: LevelWarning, Message: "Order failed due to out of stock"},
}

// An Entry is a single generated event. It is rendered once and then thrown
// away; the file and the HTTP response are the only places it lives on.
type Entry struct {
	Time    time.Time
	OrderID int
	Template
}

// String renders the entry as a single unstructured log line, e.g.
// [2024-01-02 15:04:05] ERROR - Payment failed for order (Order ID: 4321)
func (e *Entry) String() string {
	return fmt.Sprintf("[%s] %s - %s (Order ID: %d)",
		e.Time.Format(TimeFormat), e.Level, e.Message, e.OrderID,
	)
}
