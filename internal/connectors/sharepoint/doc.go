// Package sharepoint provides a DocumentSource that reads files from a
// SharePoint document library through Microsoft Graph, authenticating as
// an app registration with the OAuth2 client credentials flow.
package sharepoint
