package dispatch

import (
	"bytes"
	"fmt"
	"text/template"

	actiondomain "github.com/smallbiznis/collecta/internal/action/domain"
)

const dueTimeLayout = "2006-01-02 15:04"

const singleBody = `Hello,

A follow-up action ({{.Kind}}) is due for customer {{.CustomerLabel}}.

Invoice:     {{.InvoiceRef}}
Description: {{.Description}}
Due:         {{.DueAt}}
{{- if .PortalURL}}

Review it in the portal: {{.PortalURL}}
{{- end}}

Registered by {{.RegisteredBy}} on {{.CreatedAt}}.
`

const groupBody = `Hello,

{{.Count}} follow-up actions ({{.Kind}}) are due for customer {{.CustomerLabel}}.

Invoices:
{{- range .Lines}}
{{.}}
{{- end}}

Description: {{.Description}}
Due:         {{.DueAt}}
{{- if .PortalURL}}

Review them in the portal: {{.PortalURL}}
{{- end}}

Registered by {{.RegisteredBy}} on {{.CreatedAt}}.
`

var (
	singleTmpl = template.Must(template.New("single").Parse(singleBody))
	groupTmpl  = template.Must(template.New("group").Parse(groupBody))
)

type singleData struct {
	CustomerLabel string
	Kind          string
	InvoiceRef    string
	Description   string
	DueAt         string
	PortalURL     string
	RegisteredBy  string
	CreatedAt     string
}

type groupData struct {
	CustomerLabel string
	Kind          string
	Count         int
	Lines         []string
	Description   string
	DueAt         string
	PortalURL     string
	RegisteredBy  string
	CreatedAt     string
}

func renderSingle(in Input, portalURL string) (string, error) {
	action := in.Action
	data := singleData{
		CustomerLabel: customerLabel(action, in.DisplayName),
		Kind:          action.ActionKind,
		InvoiceRef:    invoiceRef(action, in.DisplayRef),
		Description:   action.Description,
		DueAt:         dueLabel(&action),
		PortalURL:     portalURL,
		RegisteredBy:  action.CreatedBy,
		CreatedAt:     action.CreatedAt.Format(dueTimeLayout),
	}

	var buf bytes.Buffer
	if err := singleTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render message: %w", err)
	}
	return buf.String(), nil
}

func renderGroup(in GroupInput, portalURL string) (string, error) {
	first := in.Items[0].Action
	lines := make([]string, 0, len(in.Items))
	for i, item := range in.Items {
		lines = append(lines, fmt.Sprintf("  %d. %s", i+1, invoiceRef(item.Action, item.DisplayRef)))
	}

	data := groupData{
		CustomerLabel: customerLabel(first, in.Items[0].DisplayName),
		Kind:          first.ActionKind,
		Count:         len(in.Items),
		Lines:         lines,
		Description:   first.Description,
		DueAt:         dueLabel(&first),
		PortalURL:     portalURL,
		RegisteredBy:  first.CreatedBy,
		CreatedAt:     first.CreatedAt.Format(dueTimeLayout),
	}

	var buf bytes.Buffer
	if err := groupTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render message: %w", err)
	}
	return buf.String(), nil
}

// customerLabel prints "Name (id)" when the ledger knows the customer,
// otherwise the neutral "Customer N".
func customerLabel(action actiondomain.FollowUpAction, displayName string) string {
	if displayName != "" {
		return fmt.Sprintf("%s (%d)", displayName, action.CustomerInternalID)
	}
	return fmt.Sprintf("Customer %d", action.CustomerInternalID)
}

func invoiceRef(action actiondomain.FollowUpAction, displayRef string) string {
	if displayRef != "" {
		return displayRef
	}
	return action.Ref().String()
}

func dueLabel(action *actiondomain.FollowUpAction) string {
	if action.DueAt == nil {
		return "-"
	}
	return action.DueAt.Format(dueTimeLayout)
}
