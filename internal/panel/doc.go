// Package panel talks to the hosting control panel's XML management API.
//
// Every call sends one packet to /enterprise/control/agent.php and inspects the
// whole response for an error status before decoding it. The Client exposes
// the generic Query, Mutate, and Create operations together with the typed
// customer, webspace, site, certificate, protected directory, and DNS calls the
// migration needs. Inventory resolves panel credentials from the hosting
// inventory database.
package panel
