package repository

import (
	"context"

	"github.com/Taiters/coup-clone/internal/errors"
	"gorm.io/gorm"
)

// 大厅列表分页默认值
const (
	DefaultLobbyPageSize = 20
	MaxLobbyPageSize     = 50
)

// BaseRepository 对局与会话仓储共用的能力
type BaseRepository interface {
	GetDB() *gorm.DB
	// Transaction 事务内返回的非 AppError 统一包装为 ErrTransaction
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Pagination 分页参数，Total 由查询方回填
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// NewPagination 越界的页码与页大小回落到大厅默认值
func NewPagination(page, pageSize int) *Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultLobbyPageSize
	}
	if pageSize > MaxLobbyPageSize {
		pageSize = MaxLobbyPageSize
	}
	return &Pagination{Page: page, PageSize: pageSize}
}

func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Window 对已排序的 n 条结果计算当前页的 [start, end) 区间
func (p *Pagination) Window(n int) (start, end int) {
	start = p.Offset()
	if start > n {
		start = n
	}
	end = start + p.PageSize
	if end > n {
		end = n
	}
	return start, end
}

// HasMore 是否还有下一页
func (p *Pagination) HasMore() bool {
	return int64(p.Page*p.PageSize) < p.Total
}

// Paginate gorm 分页作用域
func Paginate(p *Pagination) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.PageSize)
	}
}

// BaseRepo 基础仓储实现
type BaseRepo struct {
	db *gorm.DB
}

func NewBaseRepo(db *gorm.DB) *BaseRepo {
	return &BaseRepo{db: db}
}

func (r *BaseRepo) GetDB() *gorm.DB {
	return r.db
}

func (r *BaseRepo) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := r.db.WithContext(ctx).Transaction(fn)
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.Wrap(err, errors.ErrTransaction)
}
