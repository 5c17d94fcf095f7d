package panel

import (
	"context"
	"strings"
)

const (
	customerEntityConstant            = "customer"
	siteEntityConstant                = "site"
	webspaceEntityConstant            = "webspace"
	protectedDirectoryEntityConstant  = "protected-dir"
	certificatesEntityConstant        = "certificates"
	dnsEntityConstant                 = "dns"
	generalInfoKindConstant           = "gen_info"
	generalSetupKindConstant          = "gen_setup"
	hostingKindConstant               = "hosting"
	virtualHostingTypeConstant        = "vrt_hst"
	propertyElementNameConstant       = "property"
	nameElementNameConstant           = "name"
	valueElementNameConstant          = "value"
	certificateElementNameConstant    = "certificate"
	getPoolOperationConstant          = "get-pool"
	getRecordOperationConstant        = "get_rec"
	loginFieldConstant                = "login"
	nameFieldConstant                 = "name"
	identifierFieldConstant           = "id"
	siteIdentifierFieldConstant       = "site-id"
	domainNameFieldConstant           = "domain-name"
	ownerIdentifierFieldConstant      = "owner-id"
	hostingTypeFieldConstant          = "htype"
	ipAddressFieldConstant            = "ip_address"
	planNameFieldConstant             = "plan-name"
	presentableNameFieldConstant      = "pname"
	passwordFieldConstant             = "passwd"
	emailFieldConstant                = "email"
	ftpLoginPropertyConstant          = "ftp_login"
	ftpPasswordPropertyConstant       = "ftp_password"
	shellPropertyConstant             = "shell"
	recordTypeFieldConstant           = "type"
	recordHostFieldConstant           = "host"
	recordValueFieldConstant          = "value"
	recordOptionFieldConstant         = "opt"
	statisticsDirectoryNameConstant   = "plesk-stat"
	customerEntityDescriptionConstant = "customer"
	siteEntityDescriptionConstant     = "site"
	customerNameFieldNameConstant     = "customer name"
	customerEmailFieldNameConstant    = "customer email"
	customerLoginFieldNameConstant    = "customer login"
	webspaceNameFieldNameConstant     = "webspace name"
	webspaceIdentifierFieldConstant   = "webspace id"
	siteNameFieldNameConstant         = "site name"
	siteIdentifierFieldNameConstant   = "site id"
	domainFieldNameConstant           = "domain"

	// DefaultPlanName is the service plan assigned to new webspaces.
	DefaultPlanName = "Default Domain"
	// DefaultShell is the login shell requested for new webspaces.
	DefaultShell = "/bin/bash"
	// ChrootShell is the restricted shell panels assign to hosting accounts.
	ChrootShell = "/usr/local/psa/bin/chrootsh"
	// ShellProperty names the hosting property holding the login shell.
	ShellProperty = shellPropertyConstant

	lookupCustomerOperationConstant        = OperationName("LookupCustomer")
	createCustomerOperationConstant        = OperationName("CreateCustomer")
	createWebspaceOperationConstant        = OperationName("CreateWebspace")
	updateWebspaceHostingOperationConstant = OperationName("UpdateWebspaceHosting")
	hostingSettingsOperationConstant       = OperationName("HostingSettings")
	siteIdentifierOperationConstant        = OperationName("SiteID")
	protectedDirectoriesOperationConstant  = OperationName("ProtectedDirectories")
	certificatesOperationConstant          = OperationName("Certificates")
	dnsRecordsOperationConstant            = OperationName("DNSRecords")
)

// Customer is a panel account that owns webspaces.
type Customer struct {
	ID       EntityID
	Name     string
	Login    string
	Password string
}

// CustomerRequest describes a customer to create.
type CustomerRequest struct {
	Name  string
	Email string
}

// WebspaceRequest describes a webspace (subscription) to create.
type WebspaceRequest struct {
	Name        string
	OwnerID     EntityID
	IPAddress   string
	FTPLogin    string
	FTPPassword string
	Shell       string
	PlanName    string
}

// Webspace is a created webspace.
type Webspace struct {
	ID   EntityID
	Name string
}

// DNSRecord is one record of a site's zone.
type DNSRecord struct {
	ID     EntityID
	Type   string
	Host   string
	Value  string
	Option string
}

// LookupCustomer returns the customer owning login.
func (client *Client) LookupCustomer(executionContext context.Context, login string) (Customer, error) {
	trimmedLogin := strings.TrimSpace(login)
	if len(trimmedLogin) == 0 {
		return Customer{}, InvalidInputError{FieldName: customerLoginFieldNameConstant, Message: requiredValueMessageConstant}
	}

	result, lookupError := client.single(executionContext, lookupCustomerOperationConstant, customerEntityConstant, generalInfoKindConstant, Filter{{Name: loginFieldConstant, Value: trimmedLogin}}, customerEntityDescriptionConstant)
	if lookupError != nil {
		return Customer{}, lookupError
	}

	generalInfo, _ := result.Data.Child(generalInfoKindConstant)
	return Customer{
		ID:    result.ID,
		Name:  generalInfo.ChildValue(presentableNameFieldConstant),
		Login: trimmedLogin,
	}, nil
}

// CreateCustomer creates a customer with a derived login and a generated password and returns both.
func (client *Client) CreateCustomer(executionContext context.Context, request CustomerRequest) (Customer, error) {
	customerName := strings.TrimSpace(request.Name)
	if len(customerName) == 0 {
		return Customer{}, InvalidInputError{FieldName: customerNameFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(request.Email)) == 0 {
		return Customer{}, InvalidInputError{FieldName: customerEmailFieldNameConstant, Message: requiredValueMessageConstant}
	}

	login := DeriveLogin(customerName)
	password, passwordError := GeneratePassword(DefaultPasswordLength)
	if passwordError != nil {
		return Customer{}, passwordError
	}

	request.Email = strings.TrimSpace(request.Email)
	generalInfo := NewElement(generalInfoKindConstant, FieldElements([]Field{
		{Name: presentableNameFieldConstant, Value: customerName},
		{Name: loginFieldConstant, Value: login},
		{Name: passwordFieldConstant, Value: password},
		{Name: emailFieldConstant, Value: request.Email},
	})...)

	identifier, createError := client.create(executionContext, createCustomerOperationConstant, NewElement(customerEntityConstant, NewElement(addOperationConstant, generalInfo)))
	if createError != nil {
		return Customer{}, createError
	}
	return Customer{ID: identifier, Name: customerName, Login: login, Password: password}, nil
}

// CreateWebspace creates a virtual-hosting webspace owned by request.OwnerID.
func (client *Client) CreateWebspace(executionContext context.Context, request WebspaceRequest) (Webspace, error) {
	webspaceName := strings.TrimSpace(request.Name)
	if len(webspaceName) == 0 {
		return Webspace{}, InvalidInputError{FieldName: webspaceNameFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(request.Shell) == 0 {
		request.Shell = DefaultShell
	}
	if len(request.PlanName) == 0 {
		request.PlanName = DefaultPlanName
	}

	setupFields := []Field{{Name: nameFieldConstant, Value: webspaceName}}
	if len(request.OwnerID) > 0 {
		setupFields = append(setupFields, Field{Name: ownerIdentifierFieldConstant, Value: string(request.OwnerID)})
	}
	setupFields = append(setupFields,
		Field{Name: hostingTypeFieldConstant, Value: virtualHostingTypeConstant},
		Field{Name: ipAddressFieldConstant, Value: request.IPAddress},
	)

	virtualHosting := propertiesElement([]Field{
		{Name: ftpLoginPropertyConstant, Value: request.FTPLogin},
		{Name: ftpPasswordPropertyConstant, Value: request.FTPPassword},
		{Name: shellPropertyConstant, Value: request.Shell},
	})
	virtualHosting.Children = append(virtualHosting.Children, NewTextElement(ipAddressFieldConstant, request.IPAddress))

	addElement := NewElement(addOperationConstant,
		NewElement(generalSetupKindConstant, FieldElements(setupFields)...),
		NewElement(hostingKindConstant, virtualHosting),
		NewTextElement(planNameFieldConstant, request.PlanName),
	)

	identifier, createError := client.create(executionContext, createWebspaceOperationConstant, NewElement(webspaceEntityConstant, addElement))
	if createError != nil {
		return Webspace{}, createError
	}
	return Webspace{ID: identifier, Name: webspaceName}, nil
}

// UpdateWebspaceHosting sets virtual-hosting properties on the webspace with the given identifier.
func (client *Client) UpdateWebspaceHosting(executionContext context.Context, webspaceID EntityID, properties []Field) error {
	if len(webspaceID) == 0 {
		return InvalidInputError{FieldName: webspaceIdentifierFieldConstant, Message: requiredValueMessageConstant}
	}
	filter := Filter{{Name: identifierFieldConstant, Value: string(webspaceID)}}
	return client.mutate(executionContext, updateWebspaceHostingOperationConstant, webspaceEntityConstant, NewElement(hostingKindConstant, propertiesElement(properties)), filter)
}

// HostingSettings returns the virtual-hosting properties of the named site.
func (client *Client) HostingSettings(executionContext context.Context, siteName string) (map[string]string, error) {
	trimmedName := strings.TrimSpace(siteName)
	if len(trimmedName) == 0 {
		return nil, InvalidInputError{FieldName: siteNameFieldNameConstant, Message: requiredValueMessageConstant}
	}

	result, lookupError := client.single(executionContext, hostingSettingsOperationConstant, siteEntityConstant, hostingKindConstant, Filter{{Name: nameFieldConstant, Value: trimmedName}}, siteEntityDescriptionConstant)
	if lookupError != nil {
		return nil, lookupError
	}

	settings := make(map[string]string)
	virtualHosting, found := result.Data.Path(hostingKindConstant, virtualHostingTypeConstant)
	if !found {
		return settings, nil
	}
	for _, property := range virtualHosting.Children {
		if property.Name() != propertyElementNameConstant {
			continue
		}
		settings[property.ChildValue(nameElementNameConstant)] = property.ChildValue(valueElementNameConstant)
	}
	return settings, nil
}

// SiteID returns the identifier of the named site.
func (client *Client) SiteID(executionContext context.Context, siteName string) (EntityID, error) {
	trimmedName := strings.TrimSpace(siteName)
	if len(trimmedName) == 0 {
		return "", InvalidInputError{FieldName: siteNameFieldNameConstant, Message: requiredValueMessageConstant}
	}

	result, lookupError := client.single(executionContext, siteIdentifierOperationConstant, siteEntityConstant, generalInfoKindConstant, Filter{{Name: nameFieldConstant, Value: trimmedName}}, siteEntityDescriptionConstant)
	if lookupError != nil {
		return "", lookupError
	}
	return result.ID, nil
}

// ProtectedDirectories lists password-protected directory names of a site, excluding the statistics directory.
func (client *Client) ProtectedDirectories(executionContext context.Context, siteID EntityID) ([]string, error) {
	if len(siteID) == 0 {
		return nil, InvalidInputError{FieldName: siteIdentifierFieldNameConstant, Message: requiredValueMessageConstant}
	}

	filter := Filter{{Name: siteIdentifierFieldConstant, Value: string(siteID)}}
	results, queryError := client.query(executionContext, protectedDirectoriesOperationConstant, protectedDirectoryEntityConstant, "", filter)
	if queryError != nil {
		return nil, queryError
	}

	directories := make([]string, 0, len(results))
	for _, result := range results {
		nameElement, found := result.Raw.Find(nameElementNameConstant)
		if !found {
			continue
		}
		directoryName := nameElement.Value()
		if len(directoryName) == 0 || directoryName == statisticsDirectoryNameConstant {
			continue
		}
		directories = append(directories, directoryName)
	}
	return directories, nil
}

// Certificates lists the names of certificates in the domain's pool.
func (client *Client) Certificates(executionContext context.Context, domainName string) ([]string, error) {
	trimmedName := strings.TrimSpace(domainName)
	if len(trimmedName) == 0 {
		return nil, InvalidInputError{FieldName: domainFieldNameConstant, Message: requiredValueMessageConstant}
	}

	request := NewElement(certificatesEntityConstant, NewElement(getPoolOperationConstant,
		NewElement(filterElementNameConstant, NewTextElement(domainNameFieldConstant, trimmedName)),
	))
	response, executionError := client.Execute(executionContext, certificatesOperationConstant, request)
	if executionError != nil {
		return nil, executionError
	}

	var certificateNames []string
	for _, certificate := range response.FindAll(certificateElementNameConstant) {
		nameElement, found := certificate.Find(nameElementNameConstant)
		if !found || len(nameElement.Value()) == 0 {
			continue
		}
		certificateNames = append(certificateNames, nameElement.Value())
	}
	return certificateNames, nil
}

// DNSRecords lists the zone records of a site.
func (client *Client) DNSRecords(executionContext context.Context, siteID EntityID) ([]DNSRecord, error) {
	if len(siteID) == 0 {
		return nil, InvalidInputError{FieldName: siteIdentifierFieldNameConstant, Message: requiredValueMessageConstant}
	}

	request := NewElement(dnsEntityConstant, NewElement(getRecordOperationConstant,
		NewElement(filterElementNameConstant, NewTextElement(siteIdentifierFieldConstant, string(siteID))),
	))
	results, queryError := client.read(executionContext, dnsRecordsOperationConstant, request)
	if queryError != nil {
		return nil, queryError
	}

	records := make([]DNSRecord, 0, len(results))
	for _, result := range results {
		if len(result.ID) == 0 {
			continue
		}
		records = append(records, DNSRecord{
			ID:     result.ID,
			Type:   result.Data.ChildValue(recordTypeFieldConstant),
			Host:   result.Data.ChildValue(recordHostFieldConstant),
			Value:  result.Data.ChildValue(recordValueFieldConstant),
			Option: result.Data.ChildValue(recordOptionFieldConstant),
		})
	}
	return records, nil
}

// single runs a Query expected to match one entity and reports EntityNotFoundError when it matches none.
func (client *Client) single(executionContext context.Context, operation OperationName, entityType string, infoKind string, filter Filter, entityDescription string) (Result, error) {
	results, queryError := client.query(executionContext, operation, entityType, infoKind, filter)
	if queryError != nil {
		return Result{}, queryError
	}
	if len(results) == 0 {
		return Result{}, EntityNotFoundError{Operation: operation, Entity: entityDescription}
	}
	return results[0], nil
}

func propertiesElement(properties []Field) Element {
	virtualHosting := NewElement(virtualHostingTypeConstant)
	for _, property := range properties {
		virtualHosting.Children = append(virtualHosting.Children, NewElement(propertyElementNameConstant,
			NewTextElement(nameElementNameConstant, property.Name),
			NewTextElement(valueElementNameConstant, property.Value),
		))
	}
	return virtualHosting
}
