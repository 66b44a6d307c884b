package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("matchmaking_queue")

		collection.Fields.Add(
			&core.TextField{
				Name:     "user_id",
				Required: true,
			},
			&core.TextField{
				Name:     "username",
				Required: true,
			},
			&core.TextField{
				Name:     "topic_id",
				Required: true,
			},
			&core.NumberField{
				Name:    "rating",
				OnlyInt: true,
			},
			&core.TextField{
				Name: "joined_at",
			},
			&core.BoolField{
				Name: "matched",
			},
			&core.NumberField{
				Name:    "version",
				OnlyInt: true,
			},
			&core.AutodateField{
				Name:     "created",
				OnCreate: true,
			},
		)

		collection.AddIndex("idx_queue_topic", false, "topic_id", "")
		collection.AddIndex("idx_queue_user", false, "user_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("matchmaking_queue")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
