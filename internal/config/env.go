// Package config loads application settings: connection details from the
// environment and the table schema from its YAML file.
package config

import (
	"errors"
	"os"
)

// Config holds the connection settings for one run, loaded from environment
// variables (populated from the .env file in main).
type Config struct {
	SQLDriver       string
	SQLConnString   string
	MongoConnString string
	MongoDatabase   string
}

// LoadConfig loads connection settings from environment variables.
func LoadConfig() (*Config, error) {
	sqlConn := os.Getenv("SQL_CONNECTION_STRING")
	if sqlConn == "" {
		return nil, errors.New("SQL_CONNECTION_STRING environment variable not set")
	}

	mongoConn := os.Getenv("MONGO_CONNECTION_STRING")
	if mongoConn == "" {
		return nil, errors.New("MONGO_CONNECTION_STRING environment variable not set")
	}

	driver := os.Getenv("SQL_DRIVER")
	if driver == "" {
		driver = "sqlite3"
	}
	if driver != "sqlite3" && driver != "sqlserver" {
		return nil, errors.New("SQL_DRIVER must be sqlite3 or sqlserver")
	}

	mongoDB := os.Getenv("MONGO_DATABASE")
	if mongoDB == "" {
		mongoDB = "flowmigrate"
	}

	return &Config{
		SQLDriver:       driver,
		SQLConnString:   sqlConn,
		MongoConnString: mongoConn,
		MongoDatabase:   mongoDB,
	}, nil
}
