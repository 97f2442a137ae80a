// Command staffctl manages back-office accounts and the database schema.
//
//	staffctl migrate
//	staffctl create-user -email desk@example.com -password ... [-role STAFF|ADMIN]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/iliyamo/vehicle-rental-bot/internal/config"
	"github.com/iliyamo/vehicle-rental-bot/internal/database"
	"github.com/iliyamo/vehicle-rental-bot/internal/middleware"
	"github.com/iliyamo/vehicle-rental-bot/internal/repository"
	"github.com/iliyamo/vehicle-rental-bot/internal/utils"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		fail(err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "migrate":
		if err := database.Migrate(ctx, db); err != nil {
			fail(err)
		}
		fmt.Println("schema up to date")
	case "create-user":
		fs := flag.NewFlagSet("create-user", flag.ExitOnError)
		email := fs.String("email", "", "login email")
		password := fs.String("password", "", "initial password")
		role := fs.String("role", middleware.RoleStaff, "STAFF or ADMIN")
		_ = fs.Parse(os.Args[2:])

		r := strings.ToUpper(strings.TrimSpace(*role))
		if r != middleware.RoleStaff && r != middleware.RoleAdmin {
			fail(fmt.Errorf("unknown role %q", *role))
		}
		if strings.TrimSpace(*email) == "" {
			fail(errors.New("-email is required"))
		}
		hash, err := utils.HashPassword(*password, cfg.BcryptCost)
		if err != nil {
			fail(err)
		}
		id, err := repository.NewUserRepo(db).CreateUser(ctx, *email, hash, r)
		if err != nil {
			fail(err)
		}
		fmt.Printf("created user %d (%s)\n", id, r)
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: staffctl migrate | create-user -email E -password P [-role STAFF|ADMIN]")
	os.Exit(2)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "staffctl:", err)
	os.Exit(1)
}
