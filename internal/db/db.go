package db

import (
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/snapbite/mealscan/internal/scan"
)

func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}

	if err := gdb.AutoMigrate(
		&scan.MealLog{},
		&scan.ScanJob{},
		&scan.Ingredient{},
		&scan.ImageJob{},
	); err != nil {
		log.Fatalf("db automigrate: %v", err)
	}

	return gdb
}
