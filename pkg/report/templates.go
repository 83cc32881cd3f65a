/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: templates.go
Description: HTML templates for the session report. The header opens the results table, each
row is one tick and the tail closes the table with the session counters.
*/

package report

import (
	"html/template"
)

var headerTemplate = template.Must(template.New("header").Parse(`<html><head>
<meta charset="utf-8">
<title>Data loss report {{.SessionID}}</title>
<style>
table{font-family:arial,sans-serif;border-collapse:collapse;width:100%;}
td,th{border:1px solid #000000;text-align:center;padding:8px;}
tr:nth-child(even){background-color:#dddddd;}
td.exception{color:#b00020;font-weight:bold;}
</style>
</head><body data-session="{{.SessionID}}" data-package="{{.Package}}"><center><h1>Final report</h1>
<table id="results"><tr><th>TIME</th><th>RESULT</th><th>ACTIVITY</th><th>EVENT</th><th>VIEW BOUNDS</th><th>ABSTRACT STATE</th><th>EXCEPTION</th><th>EXCEPTION MSG</th></tr>
`))

var rowTemplate = template.Must(template.New("row").Parse(
	`<tr><td>{{.Time}}</td><td{{if eq .Result "Exception"}} class="exception"{{end}}>{{.Result}}</td><td>{{.Activity}}</td><td>{{.Event}}</td><td>{{.ViewBounds}}</td><td>{{.AbstractState}}</td><td>{{.ExceptionType}}</td><td>{{.ExceptionMsg}}</td></tr>
`))

var tailTemplate = template.Must(template.New("tail").Parse(`</table></center><br>
<ul id="summary">
<li data-key="activity_coverage">Activities covered: {{.ActivityCoverage}}%</li>
<li data-key="activity_tested">Activities tested: {{.ActivityTested}}%</li>
<li data-key="events">Generated events: {{.Events}}</li>
<li data-key="fill_ui">Generated FillUI events: {{.FillUI}}</li>
<li data-key="double_rotation">Generated DoubleRotation events: {{.DoubleRotation}}</li>
<li data-key="data_loss">Dataloss found: {{.DataLoss}}</li>
<li data-key="fatal">Fatal exceptions thrown: {{.Fatal}}</li>
<li data-key="start">Start Time: {{.Start}}</li>
<li data-key="end">End Time: {{.End}}</li>
</ul>
</body></html>
`))
