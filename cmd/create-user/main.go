// CLI tool to create a user with a bcrypt-hashed password and an empty profile.
// Goals are not created: the API serves defaults until the user saves some.
// Usage: go run ./cmd/create-user
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, os.Getenv("DB_URL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	reader := bufio.NewReader(os.Stdin)
	prompt := func(label string) string {
		fmt.Print(label)
		s, _ := reader.ReadString('\n')
		return strings.TrimSpace(s)
	}

	username := prompt("Username: ")
	email := prompt("Email: ")
	password := prompt("Password: ")
	name := prompt("Display name (optional): ")

	if username == "" || email == "" || password == "" {
		fmt.Fprintln(os.Stderr, "Username, email and password are required")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error hashing password: %v\n", err)
		os.Exit(1)
	}
	authToken := uuid.NewString()

	var userID int
	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO users (username, email, password, auth_token)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			username, email, string(hash), authToken,
		).Scan(&userID); err != nil {
			return fmt.Errorf("creating user: %w", err)
		}

		var displayName *string
		if name != "" {
			displayName = &name
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO profiles (id, name) VALUES ($1, $2)`, userID, displayName); err != nil {
			return fmt.Errorf("creating profile: %w", err)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nUser created successfully!\n")
	fmt.Printf("  ID:         %d\n", userID)
	fmt.Printf("  Username:   %s\n", username)
	fmt.Printf("  Auth Token: %s\n", authToken)
}
