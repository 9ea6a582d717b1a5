package util

import (
	"bytes"
	"text/template"
)

// MergeTemplate renders one of the embedded XML request templates with
// the request model.
func MergeTemplate(tpl *string, model any) ([]byte, error) {

	tmpl, err := template.New("request").Parse(*tpl)
	if err != nil {
		return nil, err
	}

	var output bytes.Buffer

	err = tmpl.Execute(&output, model)
	if err != nil {
		return nil, err
	}
	return output.Bytes(), nil
}
