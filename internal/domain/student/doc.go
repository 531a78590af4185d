// Package student contains the domain model of a tracked student.
//
// A Student is identified internally by a UUID and externally by a
// Codeforces handle. The sync pipeline mutates only the rating summary,
// the last sync timestamp and the notification counter; everything else
// is owned by registration.
//
// # Entities
//
//	s, err := student.NewStudent(student.NewStudentParams{
//	    ID:     uuid.NewString(),
//	    Name:   "Ada Lovelace",
//	    Email:  "ada@example.com",
//	    Handle: "tourist",
//	    Now:    time.Now().UTC(),
//	})
//
// # Repositories
//
// Repository is implemented by persistence/postgres and persistence/memory.
// Deleting a student removes its submissions and contest history.
package student
