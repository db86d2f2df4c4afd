package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wagerledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const batchSize = 200

// SnapshotRepository 快照读写
//
// 账户和流水按主键 upsert；播报和待办是小表，整表替换；
// 配置和当前会话以 JSON 文档存放在 snapshot_record。
type SnapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Load 读取完整快照，没有任何数据时返回默认配置和空集合
func (r *SnapshotRepository) Load(ctx context.Context) (*model.Snapshot, error) {
	db := r.db.WithContext(ctx)
	snap := &model.Snapshot{Config: model.DefaultPlatformConfig()}

	if err := db.Order("created_at ASC").Find(&snap.Accounts).Error; err != nil {
		return nil, fmt.Errorf("加载账户失败: %w", err)
	}
	if err := db.Order("seq DESC").Find(&snap.Transactions).Error; err != nil {
		return nil, fmt.Errorf("加载流水失败: %w", err)
	}
	if err := db.Order("position ASC").Find(&snap.Feed).Error; err != nil {
		return nil, fmt.Errorf("加载播报失败: %w", err)
	}
	if err := db.Order("created_at DESC").Find(&snap.Tasks).Error; err != nil {
		return nil, fmt.Errorf("加载待办失败: %w", err)
	}

	row, err := r.getRow(ctx, model.SnapshotKeyPlatformConfig)
	if err != nil {
		return nil, err
	}
	if row != nil {
		// 在默认值上解码，旧快照缺失的字段保持默认
		if err := json.Unmarshal([]byte(row.Payload), &snap.Config); err != nil {
			return nil, fmt.Errorf("解析运营配置失败: %w", err)
		}
	}

	row, err = r.getRow(ctx, model.SnapshotKeyCurrentSession)
	if err != nil {
		return nil, err
	}
	if row != nil {
		var s sessionDoc
		if err := json.Unmarshal([]byte(row.Payload), &s); err != nil {
			return nil, fmt.Errorf("解析当前会话失败: %w", err)
		}
		snap.SessionAccountID = s.AccountID
	}

	return snap, nil
}

type sessionDoc struct {
	AccountID string `json:"account_id"`
}

func (r *SnapshotRepository) getRow(ctx context.Context, name string) (*model.SnapshotRow, error) {
	var row model.SnapshotRow
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取快照记录 %s 失败: %w", name, err)
	}
	return &row, nil
}

func (r *SnapshotRepository) putRow(ctx context.Context, name string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	row := &model.SnapshotRow{Name: name, Payload: string(payload)}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(row).Error
}

func (r *SnapshotRepository) SaveAccounts(ctx context.Context, accounts []model.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(accounts, batchSize).Error
}

func (r *SnapshotRepository) SaveTransactions(ctx context.Context, txns []model.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(txns, batchSize).Error
}

// SaveFeed entries 从新到旧，写入时重新编号
func (r *SnapshotRepository) SaveFeed(ctx context.Context, entries []model.FeedEntry) error {
	rows := make([]model.FeedEntry, len(entries))
	for i, e := range entries {
		e.Position = i
		rows[i] = e
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.FeedEntry{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

func (r *SnapshotRepository) SaveTasks(ctx context.Context, tasks []model.Task) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.Task{}).Error; err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}
		return tx.Create(&tasks).Error
	})
}

func (r *SnapshotRepository) SaveConfig(ctx context.Context, cfg model.PlatformConfig) error {
	return r.putRow(ctx, model.SnapshotKeyPlatformConfig, cfg)
}

// SaveSession 未登录时删除记录
func (r *SnapshotRepository) SaveSession(ctx context.Context, accountID string) error {
	if accountID == "" {
		return r.db.WithContext(ctx).
			Where("name = ?", model.SnapshotKeyCurrentSession).
			Delete(&model.SnapshotRow{}).Error
	}
	return r.putRow(ctx, model.SnapshotKeyCurrentSession, sessionDoc{AccountID: accountID})
}
