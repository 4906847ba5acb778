// Package inventory acquires hardware, software and backup inventories from a
// Configuration Manager (SCCM) site database.
package inventory

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/uoloki/microsoft-dataextract/config"
	"github.com/uoloki/microsoft-dataextract/domain"
	"github.com/uoloki/microsoft-dataextract/sources"
)

// Credentials required by the inventory source. 'driver' is optional and defaults to SQL
// Server.
var Required = []string{"server", "database", "username", "password"}

const HardwareInventory = `
	SELECT
		v_GS_COMPUTER_SYSTEM.Name0 AS ComputerName,
		v_GS_PROCESSOR.Name0 AS ProcessorName,
		v_GS_PROCESSOR.NumberOfCores0 AS NumberOfCores,
		v_GS_X86_PC_MEMORY.TotalPhysicalMemory0 AS TotalPhysicalMemory
	FROM
		v_GS_COMPUTER_SYSTEM
	JOIN
		v_GS_PROCESSOR ON v_GS_COMPUTER_SYSTEM.ResourceID = v_GS_PROCESSOR.ResourceID
	JOIN
		v_GS_X86_PC_MEMORY ON v_GS_COMPUTER_SYSTEM.ResourceID = v_GS_X86_PC_MEMORY.ResourceID`

const SoftwareInventory = `
	SELECT
		v_GS_ADD_REMOVE_PROGRAMS.DisplayName0 AS SoftwareName,
		v_GS_ADD_REMOVE_PROGRAMS.Version0 AS Version,
		v_GS_ADD_REMOVE_PROGRAMS.Publisher0 AS Publisher,
		v_GS_COMPUTER_SYSTEM.Name0 AS ComputerName
	FROM
		v_GS_ADD_REMOVE_PROGRAMS
	JOIN
		v_GS_COMPUTER_SYSTEM ON v_GS_ADD_REMOVE_PROGRAMS.ResourceID = v_GS_COMPUTER_SYSTEM.ResourceID`

const BackupStatus = `
	SELECT
		v_GS_BACKUPSTATUS.BackupDateTime0 AS BackupDateTime,
		v_GS_BACKUPSTATUS.BackupStatus0 AS BackupStatus,
		v_GS_COMPUTER_SYSTEM.Name0 AS ComputerName
	FROM
		v_GS_BACKUPSTATUS
	JOIN
		v_GS_COMPUTER_SYSTEM ON v_GS_BACKUPSTATUS.ResourceID = v_GS_COMPUTER_SYSTEM.ResourceID`

type Inventory struct {
	db     *sql.DB
	log    *slog.Logger
	pinged bool
}

// New opens (but does not connect to) the inventory database.
func New(credentials *config.Credentials, log *slog.Logger) (*Inventory, error) {
	driver, err := DriverName(credentials.Get("driver"))
	if err != nil {
		return nil, err
	}

	if driver == "sqlite3" {
		err = credentials.Require(config.Inventory, "database")
	} else {
		err = credentials.Require(config.Inventory, Required...)
	}

	if err != nil {
		return nil, err
	}

	dsn := DSN(driver, credentials.Get("server"), credentials.Get("database"), credentials.Get("username"), credentials.Get("password"))

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, domain.ErrConfiguration("%s: invalid database connection settings (%w)", config.Inventory, err)
	}

	return NewWithDB(db, log), nil
}

// NewWithDB creates an inventory source over an open database handle. The source owns the
// handle and closes it on Close.
func NewWithDB(db *sql.DB, log *slog.Logger) *Inventory {
	return &Inventory{
		db:  db,
		log: log.With("source", config.Inventory),
	}
}

func (i *Inventory) Name() string {
	return config.Inventory
}

func (i *Inventory) Bindings() []sources.Binding {
	return []sources.Binding{
		{Sheet: "Hardware Inventory", Fetcher: i.query("hardware", HardwareInventory)},
		{Sheet: "Software Inventory", Fetcher: i.query("software", SoftwareInventory)},
		{Sheet: "Backup Status", Fetcher: i.query("backup", BackupStatus)},
	}
}

func (i *Inventory) Close() error {
	if err := i.db.Close(); err != nil {
		return domain.ErrIOFailure("error closing inventory database (%w)", err)
	}

	i.log.Info("database connection closed")

	return nil
}

func (i *Inventory) query(name, query string) sources.Fetcher {
	return sources.FetcherFunc(func(ctx context.Context) (*domain.Dataset, error) {
		if !i.pinged {
			if err := i.db.PingContext(ctx); err != nil {
				i.log.Error("unable to connect to database", "error", err)
				return nil, domain.ErrSourceUnavailable("unable to connect to inventory database (%w)", err)
			}

			i.log.Info("connected to database")
			i.pinged = true
		}

		rows, err := i.db.QueryContext(ctx, query)
		if err != nil {
			i.log.Error("query failed", "query", name, "error", err)
			return nil, domain.ErrSourceQuery("%s inventory query failed (%w)", name, err)
		}

		defer rows.Close()

		data, err := scan(rows)
		if err != nil {
			i.log.Error("query failed", "query", name, "error", err)
			return nil, domain.ErrSourceQuery("%s inventory query failed (%w)", name, err)
		}

		i.log.Info("fetched", "query", name, "records", len(data.Rows))

		return data, nil
	})
}

func scan(rows *sql.Rows) (*domain.Dataset, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	data := domain.NewDataset(columns...)

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make([]any, len(columns))
		for i, v := range values {
			row[i] = domain.Normalize(v)
		}

		data.Rows = append(data.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return data, nil
}

// DriverName maps the configured driver (a database/sql driver name or an ODBC driver
// string such as '{ODBC Driver 17 for SQL Server}') to a registered driver.
func DriverName(driver string) (string, error) {
	d := strings.ToLower(strings.Trim(driver, "{} "))

	switch {
	case d == "", d == "sqlserver", d == "mssql", strings.Contains(d, "sql server"):
		return "sqlserver", nil

	case d == "postgres", d == "postgresql":
		return "postgres", nil

	case d == "sqlite3", d == "sqlite":
		return "sqlite3", nil

	default:
		return "", domain.ErrConfiguration("%s: unsupported database driver '%s'", config.Inventory, driver)
	}
}

// DSN builds the data source name for a driver. SQL Server names may include an instance
// ('host\instance') or an ODBC style port ('host,1433').
func DSN(driver, server, database, username, password string) string {
	switch driver {
	case "sqlite3":
		return database

	case "postgres":
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(username, password),
			Host:   server,
			Path:   "/" + database,
		}

		return u.String()

	default:
		host := strings.Replace(server, ",", ":", 1)
		path := ""
		if h, instance, ok := strings.Cut(host, `\`); ok {
			host = h
			path = "/" + instance
		}

		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(username, password),
			Host:     host,
			Path:     path,
			RawQuery: url.Values{"database": {database}}.Encode(),
		}

		return u.String()
	}
}
