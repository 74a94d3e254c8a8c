// Package coursedex is an embeddable client for the coursedex course
// directory: fuzzy search over a course catalog snapshot and category
// counters maintained from course lifecycle events.
//
// The catalog is read from a blob source (a directory, S3, MinIO or memory);
// category documents live in Valkey, Redis or an in-process store.
//
//	client, _ := coursedex.New(ctx,
//	    coursedex.WithValkey("localhost:6379", ""),
//	    coursedex.WithCatalogDir("./data", "all_courses_data.json"),
//	)
//	defer client.Close()
//
//	courses, _ := client.SearchCourses(ctx, "ingegneria", 10)
//	unis, _ := client.TopCategories(ctx, coursedex.University, 5)
//
// Lifecycle events keep the counters current:
//
//	report, _ := client.OnCourseCreated(ctx, "evt-1", coursedex.Course{
//	    ID:   "c1",
//	    Name: "Ingegneria Informatica",
//	    Refs: map[coursedex.Kind]*coursedex.CategoryRef{
//	        coursedex.University: {ID: "polimi", Name: "Politecnico di Milano"},
//	    },
//	})
package coursedex
