package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saccohub/settlement/internal/domain"
	"github.com/saccohub/settlement/internal/seed"
)

var names = []string{
	"Achieng Otieno", "Brian Kamau", "Cynthia Wanjiru", "David Mutua",
	"Esther Njeri", "Felix Kiprop", "Grace Akinyi", "Hassan Abdi",
	"Irene Chebet", "James Mwangi", "Khadija Omar", "Lucy Wambui",
}

func main() {
	baseDir := findTestdataDir()
	createdAt := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	var d seed.Data
	for i, name := range names {
		n := i + 1
		custID := fmt.Sprintf("CUST-%03d", n)
		d.Customers = append(d.Customers, domain.Customer{
			ID:          custID,
			Name:        name,
			PhoneNumber: fmt.Sprintf("2547123456%02d", n),
			CreatedAt:   createdAt,
		})

		d.Accounts = append(d.Accounts, domain.Account{
			ID:            fmt.Sprintf("ACC-%03d-A", n),
			CustomerID:    custID,
			AccountNumber: fmt.Sprintf("AC-%05d", 10000+n),
			AccountType:   "ALPHA",
			Balance:       decimal.NewFromInt(int64(n * 250)),
			UpdatedAt:     createdAt,
		})
		if n%2 == 0 {
			d.Accounts = append(d.Accounts, domain.Account{
				ID:            fmt.Sprintf("ACC-%03d-B", n),
				CustomerID:    custID,
				AccountNumber: fmt.Sprintf("AC-%05d", 20000+n),
				AccountType:   "BETA",
				Balance:       decimal.Zero,
				UpdatedAt:     createdAt,
			})
		}

		// Odd customers carry a loan; the first one is loan 42.
		if n%2 == 1 {
			loanID := strconv.Itoa(41 + n)
			d.Loans = append(d.Loans, domain.Loan{
				ID:                 loanID,
				CustomerID:         custID,
				Reference:          "LN-" + loanID,
				OutstandingBalance: decimal.NewFromInt(int64(5000 + n*1000)),
				Status:             domain.LoanActive,
				UpdatedAt:          createdAt,
			})
		}

		if n%4 != 0 {
			d.Savings = append(d.Savings, domain.SavingsAccount{
				ID:            fmt.Sprintf("SAV-%03d", n),
				CustomerID:    custID,
				AccountNumber: fmt.Sprintf("SV-%05d", 30000+n),
				Balance:       decimal.NewFromInt(int64(n * 500)),
				UpdatedAt:     createdAt,
			})
		}
	}

	out := filepath.Join(baseDir, "seed.json")
	writeJSONFile(out, d)
	fmt.Printf("Generated %d customers, %d accounts, %d loans, %d savings accounts -> %s\n",
		len(d.Customers), len(d.Accounts), len(d.Loans), len(d.Savings), out)
}

func writeJSONFile(path string, v any) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
}

func findTestdataDir() string {
	for _, c := range []string{"testdata", filepath.Join("..", "testdata")} {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "testdata"
}
