package services

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseIdentifierColumn(t *testing.T) {
	input := "name,steam_id,notes\nalice,765001,first\nbob,765002,\n,765003,no name\n"
	ids, err := ParseIdentifierColumn(strings.NewReader(input), "steam_id")
	if err != nil {
		t.Fatalf("ParseIdentifierColumn: %v", err)
	}
	want := []string{"765001", "765002", "765003"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("want %v got %v", want, ids)
	}
}

func TestParseIdentifierColumnCaseInsensitiveHeader(t *testing.T) {
	input := "Name,Steam_ID\nalice,765001\n"
	ids, err := ParseIdentifierColumn(strings.NewReader(input), "steam_id")
	if err != nil {
		t.Fatalf("ParseIdentifierColumn: %v", err)
	}
	if len(ids) != 1 || ids[0] != "765001" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestParseIdentifierColumnMissingColumn(t *testing.T) {
	input := "name,account\nalice,765001\n"
	_, err := ParseIdentifierColumn(strings.NewReader(input), "steam_id")
	if !errors.Is(err, ErrCSVColumnNotFound) {
		t.Fatalf("want ErrCSVColumnNotFound got %v", err)
	}
}

func TestParseIdentifierColumnEmptyFile(t *testing.T) {
	_, err := ParseIdentifierColumn(strings.NewReader(""), "steam_id")
	if !errors.Is(err, ErrCSVEmpty) {
		t.Fatalf("want ErrCSVEmpty got %v", err)
	}
}

func TestParseIdentifierColumnSkipsBlankCells(t *testing.T) {
	input := "steam_id\n765001\n\n  \n765002\n"
	ids, err := ParseIdentifierColumn(strings.NewReader(input), "steam_id")
	if err != nil {
		t.Fatalf("ParseIdentifierColumn: %v", err)
	}
	want := []string{"765001", "765002"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("want %v got %v", want, ids)
	}
}
