package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	mysqlDriverNameConstant             = "mysql"
	mysqlNetworkConstant                = "tcp"
	databaseSizeQueryConstant           = "SELECT COALESCE(SUM(data_length + index_length), 0) FROM information_schema.tables WHERE table_schema = ?"
	sshNetworkConstant                  = "tcp"
	sshAgentSocketEnvironmentConstant   = "SSH_AUTH_SOCK"
	sshAgentNetworkConstant             = "unix"
	sshDirectoryNameConstant            = ".ssh"
	knownHostsFileNameConstant          = "known_hosts"
	databaseProbeErrorTemplateConstant  = "source database %s@%s/%s is not reachable: %w"
	destinationProbeErrorTemplate       = "destination %s is not reachable over ssh: %w"
	destinationDirectoryErrorTemplate   = "destination directory %s is not available: %w"
	destinationNotDirectoryTemplate     = "destination path %s is not a directory"
	knownHostsErrorTemplateConstant     = "unable to load known hosts: %w"
	preflightDatabaseLogMessageConstant = "source database reachable"
	preflightSFTPLogMessageConstant     = "destination document root reachable"
	logFieldDatabaseConstant            = "database"
	logFieldBytesConstant               = "bytes"
	logFieldHostConstant                = "host"
	logFieldDirectoryConstant           = "directory"
)

var errNoSSHAuthentication = errors.New("no ssh password or agent available")

// Preflight verifies that transfer endpoints are reachable before a pipeline starts.
type Preflight interface {
	// CheckSourceDatabase connects to the source database and returns its size in bytes.
	CheckSourceDatabase(executionContext context.Context, credentials DatabaseCredentials) (int64, error)
	// CheckDestination opens an SFTP session on host and confirms directory exists.
	CheckDestination(executionContext context.Context, host string, access SFTPAccess, directory string) error
}

// NetworkPreflight probes MySQL and SFTP endpoints over the network.
type NetworkPreflight struct {
	settings PreflightSettings
	logger   *zap.Logger
}

// NewNetworkPreflight constructs a NetworkPreflight.
func NewNetworkPreflight(settings PreflightSettings, logger *zap.Logger) *NetworkPreflight {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NetworkPreflight{settings: settings, logger: logger}
}

// CheckSourceDatabase connects with the source credentials and sums the table sizes of the database.
func (preflight *NetworkPreflight) CheckSourceDatabase(executionContext context.Context, credentials DatabaseCredentials) (int64, error) {
	configuration := mysql.NewConfig()
	configuration.User = credentials.User
	configuration.Passwd = credentials.Password
	configuration.Net = mysqlNetworkConstant
	configuration.Addr = credentials.Host
	configuration.DBName = credentials.Name
	configuration.Timeout = preflight.settings.Timeout

	database, openError := sql.Open(mysqlDriverNameConstant, configuration.FormatDSN())
	if openError != nil {
		return 0, fmt.Errorf(databaseProbeErrorTemplateConstant, credentials.User, credentials.Host, credentials.Name, openError)
	}
	defer database.Close()

	probeContext, cancel := context.WithTimeout(executionContext, preflight.settings.Timeout)
	defer cancel()

	var sizeBytes int64
	if queryError := database.QueryRowContext(probeContext, databaseSizeQueryConstant, credentials.Name).Scan(&sizeBytes); queryError != nil {
		return 0, fmt.Errorf(databaseProbeErrorTemplateConstant, credentials.User, credentials.Host, credentials.Name, queryError)
	}

	preflight.logger.Debug(preflightDatabaseLogMessageConstant,
		zap.String(logFieldHostConstant, credentials.Host),
		zap.String(logFieldDatabaseConstant, credentials.Name),
		zap.Int64(logFieldBytesConstant, sizeBytes),
	)
	return sizeBytes, nil
}

// CheckDestination authenticates with the SFTP password or the local ssh agent and stats directory.
func (preflight *NetworkPreflight) CheckDestination(executionContext context.Context, host string, access SFTPAccess, directory string) error {
	clientConfiguration, releaseAgent, configurationError := preflight.clientConfiguration(access)
	if configurationError != nil {
		return fmt.Errorf(destinationProbeErrorTemplate, host, configurationError)
	}
	defer releaseAgent()

	probeContext, cancel := context.WithTimeout(executionContext, preflight.settings.Timeout)
	defer cancel()

	address := net.JoinHostPort(host, strconv.Itoa(preflight.settings.SSHPort))
	dialer := net.Dialer{Timeout: preflight.settings.Timeout}
	connection, dialError := dialer.DialContext(probeContext, sshNetworkConstant, address)
	if dialError != nil {
		return fmt.Errorf(destinationProbeErrorTemplate, host, dialError)
	}

	clientConnection, channels, requests, handshakeError := ssh.NewClientConn(connection, address, clientConfiguration)
	if handshakeError != nil {
		connection.Close()
		return fmt.Errorf(destinationProbeErrorTemplate, host, handshakeError)
	}
	sshClient := ssh.NewClient(clientConnection, channels, requests)
	defer sshClient.Close()

	sftpClient, sftpError := sftp.NewClient(sshClient)
	if sftpError != nil {
		return fmt.Errorf(destinationProbeErrorTemplate, host, sftpError)
	}
	defer sftpClient.Close()

	fileInfo, statError := sftpClient.Stat(directory)
	if statError != nil {
		return fmt.Errorf(destinationDirectoryErrorTemplate, directory, statError)
	}
	if !fileInfo.IsDir() {
		return fmt.Errorf(destinationNotDirectoryTemplate, directory)
	}

	preflight.logger.Debug(preflightSFTPLogMessageConstant,
		zap.String(logFieldHostConstant, host),
		zap.String(logFieldDirectoryConstant, directory),
	)
	return nil
}

func (preflight *NetworkPreflight) clientConfiguration(access SFTPAccess) (*ssh.ClientConfig, func(), error) {
	release := func() {}
	userName := access.User
	if len(userName) == 0 {
		currentUser, userError := user.Current()
		if userError != nil {
			return nil, release, userError
		}
		userName = currentUser.Username
	}

	var authMethods []ssh.AuthMethod
	if len(access.Password) > 0 {
		authMethods = append(authMethods, ssh.Password(access.Password))
	}
	if socketPath := os.Getenv(sshAgentSocketEnvironmentConstant); len(socketPath) > 0 {
		if agentConnection, agentError := net.Dial(sshAgentNetworkConstant, socketPath); agentError == nil {
			authMethods = append(authMethods, ssh.PublicKeysCallback(agent.NewClient(agentConnection).Signers))
			release = func() { agentConnection.Close() }
		}
	}
	if len(authMethods) == 0 {
		return nil, release, errNoSSHAuthentication
	}

	hostKeyCallback, hostKeyError := preflight.hostKeyCallback()
	if hostKeyError != nil {
		release()
		return nil, func() {}, hostKeyError
	}

	return &ssh.ClientConfig{
		User:            userName,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         preflight.settings.Timeout,
	}, release, nil
}

func (preflight *NetworkPreflight) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if preflight.settings.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	knownHostsPath := preflight.settings.KnownHostsPath
	if len(knownHostsPath) == 0 {
		homeDirectory, homeError := os.UserHomeDir()
		if homeError != nil {
			return nil, fmt.Errorf(knownHostsErrorTemplateConstant, homeError)
		}
		knownHostsPath = filepath.Join(homeDirectory, sshDirectoryNameConstant, knownHostsFileNameConstant)
	}
	callback, callbackError := knownhosts.New(knownHostsPath)
	if callbackError != nil {
		return nil, fmt.Errorf(knownHostsErrorTemplateConstant, callbackError)
	}
	return callback, nil
}
