package domain

import "fmt"

// Route is the destination of a settlement. Exactly one of LoanRoute,
// SavingsRoute, AccountRoute or UnroutableRoute.
type Route interface {
	fmt.Stringer
	isRoute()
}

// LoanRoute applies money against a loan. An empty LoanID means the
// customer's active loan.
type LoanRoute struct {
	LoanID     string
	CustomerID string
}

type SavingsRoute struct {
	SavingsAccountID string
}

// AccountRoute moves money on a ledger-style account. SourceAccountID is set
// only for transfers.
type AccountRoute struct {
	AccountID       string
	SourceAccountID string
}

type UnroutableRoute struct {
	Reason string
}

func (LoanRoute) isRoute()       {}
func (SavingsRoute) isRoute()    {}
func (AccountRoute) isRoute()    {}
func (UnroutableRoute) isRoute() {}

func (r LoanRoute) String() string {
	if r.LoanID == "" {
		return "loan:active:" + r.CustomerID
	}
	return "loan:" + r.LoanID
}
func (r SavingsRoute) String() string { return "savings:" + r.SavingsAccountID }
func (r AccountRoute) String() string {
	if r.SourceAccountID != "" {
		return "transfer:" + r.SourceAccountID + "->" + r.AccountID
	}
	return "account:" + r.AccountID
}
func (r UnroutableRoute) String() string { return "unroutable" }

// RouteFor picks the destination of a request. First match wins: loan,
// then ledger account, then savings.
func RouteFor(req TransactionRequest) Route {
	switch {
	case req.LoanID != "" || req.Category == CategoryLoanRepayment:
		if req.LoanID == "" && req.CustomerID == "" {
			return UnroutableRoute{Reason: "loan repayment without loan or customer"}
		}
		return LoanRoute{LoanID: req.LoanID, CustomerID: req.CustomerID}
	case req.TargetAccountID != "":
		route := AccountRoute{AccountID: req.TargetAccountID}
		if req.Type == RequestTransfer {
			route.SourceAccountID = req.SourceAccountID
		}
		return route
	case req.SavingsAccountID != "":
		return SavingsRoute{SavingsAccountID: req.SavingsAccountID}
	default:
		return UnroutableRoute{Reason: "no loan, account or savings destination"}
	}
}
