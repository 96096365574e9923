package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vlebourl/cardinal-vote-sub000/internal/domain"
)

func setupPostgres(t *testing.T) *gorm.DB {
	// TranslateError must match the production connection so unique
	// violations surface as gorm.ErrDuplicatedKey here too.
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = db.AutoMigrate(&domain.Poll{}, &domain.Option{}, &domain.Ballot{}, &domain.BallotRating{})
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	return db
}
