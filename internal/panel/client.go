package panel

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// PacketVersion is the protocol version announced in every request packet.
	PacketVersion = "1.6.3.5"
	// AgentPath is the management endpoint path.
	AgentPath = "/enterprise/control/agent.php"
	// DefaultPort is the panel's management port.
	DefaultPort = 8443

	packetElementNameConstant     = "packet"
	versionAttributeNameConstant  = "version"
	filterElementNameConstant     = "filter"
	datasetElementNameConstant    = "dataset"
	valuesElementNameConstant     = "values"
	resultElementNameConstant     = "result"
	statusElementNameConstant     = "status"
	errorCodeElementNameConstant  = "errcode"
	errorTextElementNameConstant  = "errtext"
	identifierElementNameConstant = "id"
	dataElementNameConstant       = "data"
	statusErrorValueConstant      = "error"
	getOperationConstant          = "get"
	setOperationConstant          = "set"
	addOperationConstant          = "add"
	contentTypeHeaderConstant     = "Content-Type"
	contentTypeValueConstant      = "text/xml"
	prettyPrintHeaderConstant     = "HTTP_PRETTY_PRINT"
	prettyPrintValueConstant      = "TRUE"
	secretKeyHeaderConstant       = "KEY"
	authLoginHeaderConstant       = "HTTP_AUTH_LOGIN"
	authPasswordHeaderConstant    = "HTTP_AUTH_PASSWD"
	endpointURLTemplateConstant   = "%s://%s%s"
	hostFieldNameConstant         = "host"
	defaultRequestTimeoutConstant = 2 * time.Minute
	requestLogMessageConstant     = "panel request"
	responseLogMessageConstant    = "panel response"
	logFieldOperationConstant     = "operation"
	logFieldEndpointConstant      = "endpoint"
	logFieldDurationConstant      = "duration"
	logFieldResponseBytesConstant = "response_bytes"
	queryOperationNameConstant    = OperationName("Query")
	mutateOperationNameConstant   = OperationName("Mutate")
	createOperationNameConstant   = OperationName("Create")
)

// Protocol selects the URL scheme used to reach the panel.
type Protocol string

// Supported protocols.
const (
	ProtocolHTTPS Protocol = Protocol("https")
	ProtocolHTTP  Protocol = Protocol("http")
)

// EntityID is an identifier assigned by the panel.
type EntityID string

// Endpoint locates a panel management API.
type Endpoint struct {
	Host               string
	Port               int
	Protocol           Protocol
	InsecureSkipVerify bool
}

// Credentials authenticate panel requests. A non-empty SecretKey takes precedence over Login and Password.
type Credentials struct {
	Login     string
	Password  string
	SecretKey string
}

// Result is one result node of a read response.
type Result struct {
	ID   EntityID
	Data Element
	Raw  Element
}

// Client sends packets to one panel.
type Client struct {
	endpoint    Endpoint
	credentials Credentials
	httpClient  *http.Client
	logger      *zap.Logger
	agentURL    string
}

// NewClient validates the endpoint and credentials and constructs a Client.
func NewClient(endpoint Endpoint, credentials Credentials, logger *zap.Logger) (*Client, error) {
	endpoint.Host = strings.TrimSpace(endpoint.Host)
	if len(endpoint.Host) == 0 {
		return nil, InvalidInputError{FieldName: hostFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(credentials.SecretKey) == 0 && (len(credentials.Login) == 0 || len(credentials.Password) == 0) {
		return nil, ErrCredentialsNotConfigured
	}
	if endpoint.Port <= 0 {
		endpoint.Port = DefaultPort
	}
	if len(endpoint.Protocol) == 0 {
		endpoint.Protocol = ProtocolHTTPS
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if endpoint.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		endpoint:    endpoint,
		credentials: credentials,
		httpClient:  &http.Client{Transport: transport, Timeout: defaultRequestTimeoutConstant},
		logger:      logger,
		agentURL:    fmt.Sprintf(endpointURLTemplateConstant, endpoint.Protocol, net.JoinHostPort(endpoint.Host, strconv.Itoa(endpoint.Port)), AgentPath),
	}, nil
}

// Endpoint returns the resolved endpoint.
func (client *Client) Endpoint() Endpoint {
	return client.endpoint
}

// Query reads infoKind data for entityType rows matching filter. An empty infoKind omits the dataset.
func (client *Client) Query(executionContext context.Context, entityType string, infoKind string, filter Filter) ([]Result, error) {
	return client.query(executionContext, queryOperationNameConstant, entityType, infoKind, filter)
}

// Mutate sets setKind values on entityType rows matching filter.
func (client *Client) Mutate(executionContext context.Context, entityType string, setKind string, filter Filter, values []Field) error {
	return client.mutate(executionContext, mutateOperationNameConstant, entityType, NewElement(setKind, FieldElements(values)...), filter)
}

// Create adds an entityType entity described by attributes and returns its identifier.
func (client *Client) Create(executionContext context.Context, entityType string, attributes ...Element) (EntityID, error) {
	return client.create(executionContext, createOperationNameConstant, NewElement(entityType, NewElement(addOperationConstant, attributes...)))
}

// Execute sends request wrapped in a packet and returns the response packet after checking every status.
func (client *Client) Execute(executionContext context.Context, operation OperationName, request Element) (Element, error) {
	packet := NewElement(packetElementNameConstant, request)
	packet.Attributes = []xml.Attr{{Name: xml.Name{Local: versionAttributeNameConstant}, Value: PacketVersion}}

	payload, encodingError := xml.Marshal(packet)
	if encodingError != nil {
		return Element{}, ResponseParseError{Operation: operation, Cause: encodingError}
	}

	httpRequest, requestError := http.NewRequestWithContext(executionContext, http.MethodPost, client.agentURL, bytes.NewReader(append([]byte(xml.Header), payload...)))
	if requestError != nil {
		return Element{}, TransportError{Operation: operation, Endpoint: client.agentURL, Cause: requestError}
	}
	httpRequest.Header.Set(contentTypeHeaderConstant, contentTypeValueConstant)
	httpRequest.Header.Set(prettyPrintHeaderConstant, prettyPrintValueConstant)
	if len(client.credentials.SecretKey) > 0 {
		httpRequest.Header.Set(secretKeyHeaderConstant, client.credentials.SecretKey)
	} else {
		httpRequest.Header.Set(authLoginHeaderConstant, client.credentials.Login)
		httpRequest.Header.Set(authPasswordHeaderConstant, client.credentials.Password)
	}

	client.logger.Debug(requestLogMessageConstant, zap.String(logFieldOperationConstant, string(operation)), zap.String(logFieldEndpointConstant, client.agentURL))
	startTime := time.Now()

	httpResponse, transportError := client.httpClient.Do(httpRequest)
	if transportError != nil {
		return Element{}, TransportError{Operation: operation, Endpoint: client.agentURL, Cause: transportError}
	}
	defer httpResponse.Body.Close()

	body, readError := io.ReadAll(httpResponse.Body)
	if readError != nil {
		return Element{}, TransportError{Operation: operation, Endpoint: client.agentURL, Cause: readError}
	}
	client.logger.Debug(responseLogMessageConstant,
		zap.String(logFieldOperationConstant, string(operation)),
		zap.Duration(logFieldDurationConstant, time.Since(startTime)),
		zap.Int(logFieldResponseBytesConstant, len(body)),
	)

	if httpResponse.StatusCode < http.StatusOK || httpResponse.StatusCode >= http.StatusMultipleChoices {
		return Element{}, TransportError{Operation: operation, Endpoint: client.agentURL, Cause: fmt.Errorf(unexpectedHTTPStatusTemplateConstant, httpResponse.StatusCode)}
	}

	var response Element
	if decodeError := xml.Unmarshal(body, &response); decodeError != nil {
		return Element{}, ResponseParseError{Operation: operation, Cause: decodeError}
	}

	if panelError, failed := findErrorStatus(operation, response); failed {
		return Element{}, panelError
	}
	return response, nil
}

func (client *Client) query(executionContext context.Context, operation OperationName, entityType string, infoKind string, filter Filter) ([]Result, error) {
	getElement := NewElement(getOperationConstant, NewElement(filterElementNameConstant, FieldElements(filter)...))
	if len(infoKind) > 0 {
		getElement.Children = append(getElement.Children, NewElement(datasetElementNameConstant, NewElement(infoKind)))
	}
	return client.read(executionContext, operation, NewElement(entityType, getElement))
}

func (client *Client) mutate(executionContext context.Context, operation OperationName, entityType string, values Element, filter Filter) error {
	setElement := NewElement(setOperationConstant,
		NewElement(filterElementNameConstant, FieldElements(filter)...),
		NewElement(valuesElementNameConstant, values),
	)
	_, executionError := client.Execute(executionContext, operation, NewElement(entityType, setElement))
	return executionError
}

func (client *Client) read(executionContext context.Context, operation OperationName, request Element) ([]Result, error) {
	response, executionError := client.Execute(executionContext, operation, request)
	if executionError != nil {
		return nil, executionError
	}

	resultElements := response.FindAll(resultElementNameConstant)
	results := make([]Result, 0, len(resultElements))
	for _, resultElement := range resultElements {
		if _, hasStatus := resultElement.Child(statusElementNameConstant); !hasStatus {
			continue
		}
		dataElement, _ := resultElement.Child(dataElementNameConstant)
		results = append(results, Result{
			ID:   EntityID(resultElement.ChildValue(identifierElementNameConstant)),
			Data: dataElement,
			Raw:  resultElement,
		})
	}
	return results, nil
}

func (client *Client) create(executionContext context.Context, operation OperationName, request Element) (EntityID, error) {
	response, executionError := client.Execute(executionContext, operation, request)
	if executionError != nil {
		return "", executionError
	}
	resultElement, found := response.Find(resultElementNameConstant)
	if !found {
		return "", ResponseParseError{Operation: operation, Cause: errMissingResult}
	}
	identifier := resultElement.ChildValue(identifierElementNameConstant)
	if len(identifier) == 0 {
		return "", ResponseParseError{Operation: operation, Cause: errMissingIdentifier}
	}
	return EntityID(identifier), nil
}

// findErrorStatus reports the first element, in document order, whose status child is error.
func findErrorStatus(operation OperationName, element Element) (PanelError, bool) {
	if element.ChildValue(statusElementNameConstant) == statusErrorValueConstant {
		errorCode, _ := strconv.Atoi(element.ChildValue(errorCodeElementNameConstant))
		return PanelError{Operation: operation, Code: errorCode, Text: element.ChildValue(errorTextElementNameConstant)}, true
	}
	for _, child := range element.Children {
		if panelError, failed := findErrorStatus(operation, child); failed {
			return panelError, true
		}
	}
	return PanelError{}, false
}
