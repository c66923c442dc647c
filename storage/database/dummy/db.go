// Package dummydb provides in-memory repositories for tests.
package dummydb

import (
	"sync"

	"github.com/trezcool/kazi/core/assignment"
)

type (
	assignmentTable struct {
		sync.RWMutex
		table map[string]*assignment.Assignment
	}

	submissionTable struct {
		sync.RWMutex
		table map[string]*assignment.SubmissionRecord
	}

	DB struct {
		assignment *assignmentTable
		submission *submissionTable
	}
)

func Open() (*DB, error) {
	db := &DB{
		assignment: &assignmentTable{table: make(map[string]*assignment.Assignment)},
		submission: &submissionTable{table: make(map[string]*assignment.SubmissionRecord)},
	}
	return db, nil
}
