// Command seed-admin resets the bootstrap admin password and can lay out a
// demo chamber for local runs.
package main

import (
	"context"
	"errors"
	"flag"
	"log"

	"go-seedvault/internal/config"
	"go-seedvault/internal/repository"
	"go-seedvault/internal/service"
	"go-seedvault/pkg/database"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	demo := flag.Bool("demo", false, "create a demo chamber with a 2x2x5x4 slot grid and seed types")
	flag.Parse()

	// 1. Load Env
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, relying on system env")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// 2. Setup Database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	ctx := context.Background()

	userRepo := repository.NewUserRepo(db)
	userService := service.NewUserService(userRepo, repository.NewPrivilegeRepo(db), repository.NewRoleRepo(db))
	if err := userService.SeedAccessControl(ctx); err != nil {
		log.Fatalf("❌ Failed to seed roles: %v", err)
	}

	// 3. Find or create admin
	email := cfg.Admin.Email
	created, err := userService.EnsureAdmin(ctx, email, cfg.Admin.Password, cfg.Admin.FullName)
	if err != nil {
		log.Fatalf("❌ Failed to ensure admin %s: %v", email, err)
	}
	if created {
		log.Printf("✅ Admin user created: %s", email)
	} else {
		// 4. Hash new password
		user, err := userRepo.FindByEmail(ctx, email)
		if err != nil {
			log.Fatalf("❌ User %s not found in database: %v", email, err)
		}
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(cfg.Admin.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("❌ Failed to hash password: %v", err)
		}
		// 5. Update
		if err := userRepo.UpdatePassword(ctx, user.ID, string(hashedPassword)); err != nil {
			log.Fatalf("❌ Failed to update password in DB: %v", err)
		}
		log.Printf("✅ Password for %s has been reset", email)
	}

	if *demo {
		seedDemo(ctx, userRepo, email, service.NewChamberService(db,
			repository.NewChamberRepo(db), repository.NewSlotRepo(db), repository.NewSeedTypeRepo(db), nil, nil))
	}
}

func seedDemo(ctx context.Context, userRepo repository.UserRepository, email string, chambers service.ChamberService) {
	admin, err := userRepo.FindByEmail(ctx, email)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	actor := service.Actor{ID: admin.ID, Name: admin.FullName, Capabilities: admin.PrivilegeCodes()}

	temperature, humidity := -18.0, 15.0
	chamber, err := chambers.CreateChamber(ctx, &service.CreateChamberRequest{
		Code:        "DEMO-01",
		Name:        "Demo cold chamber",
		Temperature: &temperature,
		Humidity:    &humidity,
	}, actor)
	if errors.Is(err, service.ErrChamberCodeExists) {
		log.Println("Demo chamber already exists, skipping")
		return
	}
	if err != nil {
		log.Fatalf("❌ Failed to create demo chamber: %v", err)
	}
	slots, err := chambers.GenerateSlots(ctx, chamber.ID, &service.GenerateSlotsRequest{
		Blocks: 2, Sides: 2, Rows: 5, Levels: 4, MaxCapacity: 1000,
	}, actor)
	if err != nil {
		log.Fatalf("❌ Failed to generate slots: %v", err)
	}
	log.Printf("✅ Chamber %s created with %d slots", chamber.Code, len(slots))

	for _, st := range []service.CreateSeedTypeRequest{
		{Code: "SOY", Name: "Soybean", Species: "Glycine max"},
		{Code: "CORN", Name: "Maize", Species: "Zea mays"},
		{Code: "WHEAT", Name: "Wheat", Species: "Triticum aestivum"},
	} {
		st := st
		if _, err := chambers.CreateSeedType(ctx, &st, actor); err != nil {
			log.Printf("Warning: seed type %s: %v", st.Code, err)
		}
	}
}
