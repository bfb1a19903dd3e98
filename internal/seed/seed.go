package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/saccohub/settlement/internal/domain"
	"github.com/saccohub/settlement/internal/repository"
)

// Data is the layout of testdata/seed.json.
type Data struct {
	Customers []domain.Customer       `json:"customers"`
	Accounts  []domain.Account        `json:"accounts"`
	Loans     []domain.Loan           `json:"loans"`
	Savings   []domain.SavingsAccount `json:"savings_accounts"`
}

// FindFile returns the first seed file that exists among the usual
// locations. explicit wins when set.
func FindFile(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	candidates := []string{
		filepath.Join("testdata", "seed.json"),
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "testdata", "seed.json"),
			filepath.Join(dir, "..", "..", "testdata", "seed.json"),
		)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("could not find seed.json in any candidate path")
}

// LoadFile reads and decodes a seed file.
func LoadFile(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("unmarshal seed: %w", err)
	}
	return &d, nil
}

// Apply inserts the seed in one transaction. It does nothing when the
// store already has customers.
func Apply(ctx context.Context, store *repository.Store, d *Data) (bool, error) {
	n, err := store.Customers.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count customers: %w", err)
	}
	if n > 0 {
		log.Printf("[seed] store already has %d customers, skipping seed", n)
		return false, nil
	}

	err = store.InTx(ctx, func(tx *repository.Store) error {
		for i := range d.Customers {
			if err := tx.Customers.Insert(ctx, &d.Customers[i]); err != nil {
				return err
			}
		}
		for i := range d.Accounts {
			if err := tx.Accounts.Insert(ctx, &d.Accounts[i]); err != nil {
				return err
			}
		}
		for i := range d.Loans {
			if err := tx.Loans.Insert(ctx, &d.Loans[i]); err != nil {
				return err
			}
		}
		for i := range d.Savings {
			if err := tx.Savings.Insert(ctx, &d.Savings[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("apply seed: %w", err)
	}
	log.Printf("[seed] seeded %d customers, %d accounts, %d loans, %d savings accounts",
		len(d.Customers), len(d.Accounts), len(d.Loans), len(d.Savings))
	return true, nil
}
