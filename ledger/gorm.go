package ledger

import (
	"errors"
	"time"

	"github.com/thejerf/abtime"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormRegistration struct {
	ID        string    `gorm:"primaryKey"`
	ExpiresAt time.Time `gorm:"index"`
}

func (gormRegistration) TableName() string { return "registrations" }

// Gorm is a database-backed Ledger. Registration state is shared across
// processes, so a logout on one node revokes the token everywhere.
type Gorm struct {
	db    *gorm.DB
	clock abtime.AbstractTime
	skew  time.Duration
}

func NewGorm(db *gorm.DB, clock abtime.AbstractTime, skew time.Duration) (*Gorm, error) {
	if err := db.AutoMigrate(&gormRegistration{}); err != nil {
		return nil, err
	}
	return &Gorm{db: db, clock: clock, skew: skew}, nil
}

func (g *Gorm) Register(id string, expires time.Time) error {
	reg := gormRegistration{ID: id, ExpiresAt: expires}
	return g.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&reg).Error
}

func (g *Gorm) Deregister(id string) error {
	return g.db.Delete(&gormRegistration{}, "id = ?", id).Error
}

func (g *Gorm) IsRegistered(id string) (bool, error) {
	var reg gormRegistration
	err := g.db.First(&reg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Purge deletes registrations whose expiry plus skew has passed and returns
// how many rows were removed.
func (g *Gorm) Purge() (int64, error) {
	horizon := g.clock.Now().Add(-g.skew)
	res := g.db.Delete(&gormRegistration{}, "expires_at < ?", horizon)
	return res.RowsAffected, res.Error
}
