package orders

import (
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

// ListFilter selects orders for listing. Zero values are ignored.
type ListFilter struct {
	Stage       Stage
	CreatedBy   string
	BookingBy   string
	QuoteNumber string
	Cancelled   *bool
	CreatedFrom time.Time
	CreatedTo   time.Time
	Page        int
	PerPage     int
}

// forwardStages pairs each forward stage with the column that marks it.
var forwardStages = []struct {
	stage  Stage
	column string
}{
	{StageDraft, ""},
	{StageSalesDone, "sales_status"},
	{StageAccountDone, "account_status"},
	{StageAdminApproved, "admin_status"},
	{StageDispatched, "dispatch_status"},
	{StageDelivered, "delivery_status"},
	{StageInstalled, "installation_status"},
	{StageComplete, "completed_at"},
}

func stageDone(column string) exp.Expression {
	if column == "completed_at" {
		return goqu.C(column).IsNotNull()
	}
	return goqu.C(column).Eq(int16(Done))
}

func stagePending(column string) exp.Expression {
	if column == "completed_at" {
		return goqu.C(column).IsNull()
	}
	return goqu.C(column).Eq(int16(Pending))
}

// stageCondition mirrors Order.Stage as a WHERE clause.
func stageCondition(stage Stage) exp.Expression {
	switch stage {
	case StageReturned:
		return goqu.C("is_returned").Eq(int16(ReturnFull))
	case StagePartiallyReturned:
		return goqu.C("is_returned").Eq(int16(ReturnPartial))
	case StageCancelled:
		return goqu.And(goqu.C("is_returned").Eq(int16(ReturnNone)), goqu.C("is_cancelled").IsTrue())
	}
	conds := []exp.Expression{
		goqu.C("is_returned").Eq(int16(ReturnNone)),
		goqu.C("is_cancelled").IsFalse(),
	}
	for i, fs := range forwardStages {
		if fs.stage != stage {
			continue
		}
		if fs.column != "" {
			conds = append(conds, stageDone(fs.column))
		}
		for _, later := range forwardStages[i+1:] {
			conds = append(conds, stagePending(later.column))
		}
	}
	return goqu.And(conds...)
}

// conditions compiles the filter into parameterised expressions.
func (f ListFilter) conditions() []exp.Expression {
	var out []exp.Expression
	if f.Stage != "" {
		out = append(out, stageCondition(f.Stage))
	}
	if f.CreatedBy != "" {
		out = append(out, goqu.C("created_by").Eq(f.CreatedBy))
	}
	if f.BookingBy != "" {
		out = append(out, goqu.C("booking_by").Eq(f.BookingBy))
	}
	if f.QuoteNumber != "" {
		out = append(out, goqu.C("quote_number").Eq(f.QuoteNumber))
	}
	if f.Cancelled != nil {
		out = append(out, goqu.C("is_cancelled").Eq(*f.Cancelled))
	}
	if !f.CreatedFrom.IsZero() {
		out = append(out, goqu.C("created_at").Gte(f.CreatedFrom))
	}
	if !f.CreatedTo.IsZero() {
		out = append(out, goqu.C("created_at").Lt(f.CreatedTo))
	}
	return out
}
