// CLI tool to create a user with a bcrypt-hashed password and an empty profile.
// Usage: go run ./cmd/create-user
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type newUser struct {
	Username string
	Email    string
	FullName string
	Password string
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file loaded, using process environment")
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, os.Getenv("DB_URL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	u, err := promptUser(os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid input: %v\n", err)
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error hashing password: %v\n", err)
		os.Exit(1)
	}

	var userID int
	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO users (username, email, password, full_name)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			u.Username, u.Email, string(hash), u.FullName,
		).Scan(&userID); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO user_profiles (user_id) VALUES ($1)`, userID); err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nUser created successfully!\n")
	fmt.Printf("  ID:       %d\n", userID)
	fmt.Printf("  Username: %s\n", u.Username)
}

// promptUser reads the new user's fields line by line from r.
func promptUser(r io.Reader, w io.Writer) (newUser, error) {
	reader := bufio.NewReader(r)
	ask := func(label string) string {
		fmt.Fprintf(w, "%s: ", label)
		line, _ := reader.ReadString('\n')
		return strings.TrimSpace(line)
	}

	u := newUser{
		Username: ask("Username"),
		Email:    strings.ToLower(ask("Email")),
		FullName: ask("Full name"),
		Password: ask("Password"),
	}
	switch {
	case len(u.Username) < 3:
		return u, fmt.Errorf("username must be at least 3 characters")
	case !strings.Contains(u.Email, "@"):
		return u, fmt.Errorf("email is invalid")
	case len(u.Password) < 8:
		return u, fmt.Errorf("password must be at least 8 characters")
	}
	return u, nil
}
