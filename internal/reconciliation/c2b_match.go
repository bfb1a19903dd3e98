package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/saccohub/settlement/internal/domain"
	"github.com/saccohub/settlement/internal/repository"
	"github.com/saccohub/settlement/internal/suspense"
)

// savingsPriority is the priority entry that selects the customer's
// savings account rather than a ledger account type.
const savingsPriority = "SAVINGS"

// matchC2B fills the routing hints of req from the bill reference, trying
// loan reference, account number and savings account number in turn, and
// falls back to the default account of the customer owning phone.
func (s *Service) matchC2B(ctx context.Context, tx *repository.Store, billRef, phone string, req *domain.TransactionRequest) (bool, string, error) {
	ref := strings.TrimSpace(billRef)
	if ref != "" {
		loan, err := tx.Loans.GetByReference(ctx, ref)
		if err == nil && loan.Status == domain.LoanActive {
			req.LoanID, req.CustomerID, req.Category = loan.ID, loan.CustomerID, domain.CategoryLoanRepayment
			return true, "loan " + loan.Reference, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return false, "", err
		}

		acct, err := tx.Accounts.GetByNumber(ctx, ref)
		if err == nil {
			req.TargetAccountID, req.CustomerID, req.Category = acct.ID, acct.CustomerID, domain.CategoryAccountDeposit
			return true, "account " + acct.AccountNumber, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return false, "", err
		}

		sav, err := tx.Savings.GetByNumber(ctx, ref)
		if err == nil {
			req.SavingsAccountID, req.CustomerID, req.Category = sav.ID, sav.CustomerID, domain.CategorySavingsDeposit
			return true, "savings " + sav.AccountNumber, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return false, "", err
		}
	}

	cust, err := tx.Customers.GetByPhone(ctx, phone)
	if errors.Is(err, domain.ErrNotFound) {
		return false, fmt.Sprintf("unmatched paybill payment: bill ref %q, phone %s", billRef, phone), nil
	}
	if err != nil {
		return false, "", err
	}
	req.CustomerID = cust.ID

	ok, note, err := s.defaultDestination(ctx, tx, cust.ID, req)
	if err != nil || ok {
		return ok, note, err
	}
	return false, fmt.Sprintf("customer %s has no account to credit (bill ref %q)", cust.ID, billRef), nil
}

// defaultDestination walks the configured account-type priority, then takes
// the first account of any type, then the first savings account.
func (s *Service) defaultDestination(ctx context.Context, tx *repository.Store, customerID string, req *domain.TransactionRequest) (bool, string, error) {
	accounts, err := tx.Accounts.ListByCustomer(ctx, customerID)
	if err != nil {
		return false, "", err
	}
	savings, err := tx.Savings.ListByCustomer(ctx, customerID)
	if err != nil {
		return false, "", err
	}

	useSavings := func() (bool, string, error) {
		req.SavingsAccountID, req.Category = savings[0].ID, domain.CategorySavingsDeposit
		return true, "default savings " + savings[0].AccountNumber, nil
	}
	useAccount := func(a domain.Account) (bool, string, error) {
		req.TargetAccountID, req.Category = a.ID, domain.CategoryAccountDeposit
		return true, "default account " + a.AccountNumber, nil
	}

	for _, want := range s.priority {
		if strings.EqualFold(want, savingsPriority) {
			if len(savings) > 0 {
				return useSavings()
			}
			continue
		}
		for _, a := range accounts {
			if strings.EqualFold(a.AccountType, want) {
				return useAccount(a)
			}
		}
	}
	if len(accounts) > 0 {
		return useAccount(accounts[0])
	}
	if len(savings) > 0 {
		return useSavings()
	}
	return false, "", nil
}

func suspenseEntry(p *domain.PendingPayment, reason string) suspense.Entry {
	return suspense.Entry{
		SourceReference:      settlementReference(p),
		Amount:               p.Amount,
		Reason:               reason,
		PhoneNumber:          p.PhoneNumber,
		PendingPaymentID:     p.ID,
		TransactionRequestID: p.TransactionRequestID,
	}
}
