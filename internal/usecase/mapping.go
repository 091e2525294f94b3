package usecase

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
)

// LoadState rebuilds the aggregates from the store rows. Policies and rules
// are ordered by the id lists kept on their owners.
func LoadState(store domain.Store) (*domain.State, error) {
	rows := make(map[domain.Table]map[string]domain.Record, len(domain.Tables))
	for _, t := range domain.Tables {
		records, err := store.FindAll(t)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read table %s", t)
		}
		byID := make(map[string]domain.Record, len(records))
		for _, r := range records {
			byID[r.ID] = r
		}
		rows[t] = byID
	}

	state := domain.NewState()
	for id, rec := range rows[domain.TableUsers] {
		u, err := decodeUser(rec, rows)
		if err != nil {
			return nil, errors.Wrapf(err, "user %s", id)
		}
		state.Users[id] = u
	}
	for id, rec := range rows[domain.TableEnforcers] {
		n, err := decodeEnforcer(rec, rows)
		if err != nil {
			return nil, errors.Wrapf(err, "enforcer %s", id)
		}
		state.Enforcers[id] = n
	}
	return state, nil
}

type userRow struct {
	Username        string            `json:"username"`
	Password        string            `json:"password"`
	ApplyingEnabled bool              `json:"applying_enabled"`
	BlockState      domain.BlockState `json:"block_state"`
	PolicyIDs       []string          `json:"policy_ids"`
}

type policyRow struct {
	Name      string           `json:"name"`
	Enabled   bool             `json:"enabled"`
	Protector domain.Protector `json:"protector"`
	RuleIDs   []string         `json:"rule_ids"`
}

type ruleRow struct {
	Activator domain.Activator `json:"activator"`
	Enabler   *domain.Enabler  `json:"enabler"`
}

type enforcerRow struct {
	OSUserID   uint32            `json:"os_user_id"`
	Username   string            `json:"username"`
	Enabled    bool              `json:"enabled"`
	BlockState domain.BlockState `json:"block_state"`
	RuleIDs    []string          `json:"rule_ids"`
}

// decodeRow re-assembles the field map into one JSON object and decodes it.
func decodeRow(rec domain.Record, v any) error {
	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func decodeUser(rec domain.Record, rows map[domain.Table]map[string]domain.Record) (*domain.User, error) {
	var row userRow
	if err := decodeRow(rec, &row); err != nil {
		return nil, err
	}
	u := &domain.User{
		ID:       rec.ID,
		Username: row.Username,
		Password: row.Password,
		Regulation: domain.Regulation{
			ApplyingEnabled: row.ApplyingEnabled,
			BlockState:      row.BlockState,
		},
	}
	for _, pid := range row.PolicyIDs {
		prec, ok := rows[domain.TablePolicies][pid]
		if !ok {
			return nil, errors.Errorf("missing policy %s", pid)
		}
		var prow policyRow
		if err := decodeRow(prec, &prow); err != nil {
			return nil, errors.Wrapf(err, "policy %s", pid)
		}
		rules, err := decodeRules(prow.RuleIDs, rows)
		if err != nil {
			return nil, errors.Wrapf(err, "policy %s", pid)
		}
		u.Regulation.Policies = append(u.Regulation.Policies, domain.Policy{
			ID:        pid,
			Name:      prow.Name,
			Enabled:   prow.Enabled,
			Protector: prow.Protector,
			Rules:     rules,
		})
	}
	return u, nil
}

func decodeEnforcer(rec domain.Record, rows map[domain.Table]map[string]domain.Record) (*domain.NetworkEnforcer, error) {
	var row enforcerRow
	if err := decodeRow(rec, &row); err != nil {
		return nil, err
	}
	rules, err := decodeRules(row.RuleIDs, rows)
	if err != nil {
		return nil, err
	}
	return &domain.NetworkEnforcer{
		ID:         rec.ID,
		OSUserID:   row.OSUserID,
		Username:   row.Username,
		Rules:      rules,
		Enabled:    row.Enabled,
		BlockState: row.BlockState,
	}, nil
}

func decodeRules(ids []string, rows map[domain.Table]map[string]domain.Record) ([]domain.Rule, error) {
	var rules []domain.Rule
	for _, id := range ids {
		rec, ok := rows[domain.TableRules][id]
		if !ok {
			return nil, errors.Errorf("missing rule %s", id)
		}
		var row ruleRow
		if err := decodeRow(rec, &row); err != nil {
			return nil, errors.Wrapf(err, "rule %s", id)
		}
		rules = append(rules, domain.Rule{ID: id, Activator: row.Activator, Enabler: row.Enabler})
	}
	return rules, nil
}
