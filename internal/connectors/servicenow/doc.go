// Package servicenow provides a DocumentSource that reads records from
// ServiceNow tables through the Table API.
//
// Each record becomes one document whose text joins the descriptive
// fields of the record (short_description, description, text, question,
// answer). Records carry links back to the instance so answers can cite
// them.
package servicenow
