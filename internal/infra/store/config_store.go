package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paygrid/settlement-engine-go/internal/domain"
)

// ConfigStore persists per-client settlement configuration.
type ConfigStore struct {
	db *sql.DB
}

func NewConfigStore(db *sql.DB) *ConfigStore {
	return &ConfigStore{db: db}
}

const selectConfigCols = `SELECT config_id, client_code, settlement_cycle,
	min_settlement_amount, processing_fee_percent, gst_percent, auto_settle,
	bank_account_number, bank_name, ifsc_code, account_holder_name, is_active,
	created_at, updated_at`

func (s *ConfigStore) Get(ctx context.Context, clientCode string) (*domain.ClientSettlementConfig, error) {
	row := s.db.QueryRowContext(ctx,
		selectConfigCols+" FROM settlement_configurations WHERE client_code = ?",
		clientCode)
	cfg, err := scanConfig(row)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Resource: "settlement configuration", ID: clientCode}
	}
	return cfg, err
}

// GetOrCreate lazily creates the default configuration on first read.
// INSERT OR IGNORE makes concurrent callers converge on a single row.
func (s *ConfigStore) GetOrCreate(ctx context.Context, def domain.ClientSettlementConfig) (*domain.ClientSettlementConfig, error) {
	autoSettle := 0
	if def.AutoSettle {
		autoSettle = 1
	}
	active := 0
	if def.IsActive {
		active = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settlement_configurations
		(config_id, client_code, settlement_cycle, min_settlement_amount,
		 processing_fee_percent, gst_percent, auto_settle, bank_account_number,
		 bank_name, ifsc_code, account_holder_name, is_active, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		def.ConfigID.String(), def.ClientCode, string(def.SettlementCycle),
		def.MinSettlementAmount.String(), def.ProcessingFeePct.String(),
		def.GSTPct.String(), autoSettle, def.BankAccountNumber, def.BankName,
		def.IFSCCode, def.AccountHolderName, active,
		fmtTime(def.CreatedAt), fmtTime(def.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert config: %w", err)
	}
	return s.Get(ctx, def.ClientCode)
}

// Update applies the explicit mutation path. Nil fields in upd are left
// unchanged; lazy-create never goes through here.
func (s *ConfigStore) Update(ctx context.Context, clientCode string, upd domain.ConfigUpdate) (*domain.ClientSettlementConfig, error) {
	cfg, err := s.Get(ctx, clientCode)
	if err != nil {
		return nil, err
	}

	if upd.SettlementCycle != nil {
		cfg.SettlementCycle = *upd.SettlementCycle
	}
	if upd.MinSettlementAmount != nil {
		cfg.MinSettlementAmount = *upd.MinSettlementAmount
	}
	if upd.ProcessingFeePct != nil {
		cfg.ProcessingFeePct = *upd.ProcessingFeePct
	}
	if upd.GSTPct != nil {
		cfg.GSTPct = *upd.GSTPct
	}
	if upd.AutoSettle != nil {
		cfg.AutoSettle = *upd.AutoSettle
	}
	if upd.BankAccountNumber != nil {
		cfg.BankAccountNumber = *upd.BankAccountNumber
	}
	if upd.BankName != nil {
		cfg.BankName = *upd.BankName
	}
	if upd.IFSCCode != nil {
		cfg.IFSCCode = *upd.IFSCCode
	}
	if upd.AccountHolderName != nil {
		cfg.AccountHolderName = *upd.AccountHolderName
	}
	cfg.UpdatedAt = time.Now().UTC()

	autoSettle := 0
	if cfg.AutoSettle {
		autoSettle = 1
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE settlement_configurations
		 SET settlement_cycle = ?, min_settlement_amount = ?,
		     processing_fee_percent = ?, gst_percent = ?, auto_settle = ?,
		     bank_account_number = ?, bank_name = ?, ifsc_code = ?,
		     account_holder_name = ?, updated_at = ?
		 WHERE client_code = ?`,
		string(cfg.SettlementCycle), cfg.MinSettlementAmount.String(),
		cfg.ProcessingFeePct.String(), cfg.GSTPct.String(), autoSettle,
		cfg.BankAccountNumber, cfg.BankName, cfg.IFSCCode,
		cfg.AccountHolderName, fmtTime(cfg.UpdatedAt), clientCode,
	)
	if err != nil {
		return nil, fmt.Errorf("update config: %w", err)
	}
	return cfg, nil
}

// Deactivate marks a configuration inactive. Configurations are never
// physically deleted.
func (s *ConfigStore) Deactivate(ctx context.Context, clientCode string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE settlement_configurations SET is_active = 0, updated_at = ?
		 WHERE client_code = ?`,
		fmtTime(time.Now().UTC()), clientCode,
	)
	if err != nil {
		return fmt.Errorf("deactivate config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ErrNotFound{Resource: "settlement configuration", ID: clientCode}
	}
	return nil
}

func (s *ConfigStore) List(ctx context.Context) ([]domain.ClientSettlementConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		selectConfigCols+" FROM settlement_configurations ORDER BY client_code")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cfgs []domain.ClientSettlementConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, *cfg)
	}
	return cfgs, rows.Err()
}

func scanConfig(row rowScanner) (*domain.ClientSettlementConfig, error) {
	var (
		cfg                  domain.ClientSettlementConfig
		id, cycle            string
		minAmt, feePct, gst  string
		autoSettle, active   int
		createdAt, updatedAt string
	)
	err := row.Scan(&id, &cfg.ClientCode, &cycle, &minAmt, &feePct, &gst,
		&autoSettle, &cfg.BankAccountNumber, &cfg.BankName, &cfg.IFSCCode,
		&cfg.AccountHolderName, &active, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	cfg.ConfigID, _ = uuid.Parse(id)
	cfg.SettlementCycle = domain.SettlementCycle(cycle)
	cfg.MinSettlementAmount = parseDec(minAmt)
	cfg.ProcessingFeePct = parseDec(feePct)
	cfg.GSTPct = parseDec(gst)
	cfg.AutoSettle = autoSettle != 0
	cfg.IsActive = active != 0
	cfg.CreatedAt = parseTime(createdAt)
	cfg.UpdatedAt = parseTime(updatedAt)
	return &cfg, nil
}
