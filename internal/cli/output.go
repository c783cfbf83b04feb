package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Output управляет форматированием вывода CLI.
//
// Данные идут в w (stdout), сообщения — в errW (stderr), чтобы
// вывод с --json можно было отдавать в pipe.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput создаёт Output поверх stdout/stderr.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с явными writers.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{jsonMode: jsonMode, w: w, errW: errW}
}

// JSONMode сообщает, включён ли --json.
func (o *Output) JSONMode() bool {
	return o.jsonMode
}

// Print выводит jsonData в режиме --json, иначе таблицу.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит таблицу с подчёркнутыми заголовками.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := o.tabwriter()

	underline := make([]string, len(headers))
	for i, h := range headers {
		underline[i] = strings.Repeat("-", len(h))
	}

	writeRow(tw, headers)
	writeRow(tw, underline)
	for _, row := range rows {
		writeRow(tw, row)
	}
	tw.Flush()
}

// Field — строка карточки объекта.
type Field struct {
	Name  string
	Value string
}

// Fields выводит карточку "Name: value" с выровненными значениями.
// Поля с пустым значением пропускаются.
func (o *Output) Fields(fields ...Field) {
	tw := o.tabwriter()
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		fmt.Fprintf(tw, "%s:\t%s\n", f.Name, f.Value)
	}
	tw.Flush()
}

// Blank выводит пустую строку между блоками.
func (o *Output) Blank() {
	fmt.Fprintln(o.w)
}

// JSON выводит v с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		o.Error(err.Error())
	}
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

func (o *Output) tabwriter() *tabwriter.Writer {
	return tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
}

func writeRow(w io.Writer, cells []string) {
	fmt.Fprintln(w, strings.Join(cells, "\t"))
}

// displayTime переводит RFC 3339 из API в "2006-01-02 15:04:05" UTC.
// Пустая строка даёт "-", нераспознанная возвращается как есть.
func displayTime(s string) string {
	if s == "" {
		return "-"
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return t.UTC().Format(time.DateTime)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
