package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nestmate/nestmate/store"
)

const userColumns = `id, first_name, last_name, email, date_of_birth, gender, zip_code,
	more_about_me, avatar_path, budget_min, budget_max,
	ls_pet_friendly, ls_smoking, ls_night_owl, ls_guest_frequency,
	pref_pet_friendly, pref_smoking, pref_night_owl, pref_guest_frequency,
	pref_min_age, pref_max_age, pref_gender, pref_more_about,
	created_ts, updated_ts`

// CreateUser inserts a user row.
func (d *DB) CreateUser(ctx context.Context, create *store.UserProfile) (*store.UserProfile, error) {
	args := userWriteArgs(create)
	stmt := `
		INSERT INTO users (` + userColumns + `)
		VALUES (` + placeholders(len(args)) + `)
	`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create user")
	}
	return create, nil
}

// GetUser finds a single user.
func (d *DB) GetUser(ctx context.Context, find *store.FindUser) (*store.UserProfile, error) {
	f := *find
	one := 1
	f.Limit = &one
	users, err := d.ListUsers(ctx, &f)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, store.ErrUserNotFound
	}
	return users[0], nil
}

// ListUsers lists users matching the find conditions.
func (d *DB) ListUsers(ctx context.Context, find *store.FindUser) ([]*store.UserProfile, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if len(find.IDs) > 0 {
		holders := make([]string, 0, len(find.IDs))
		for _, id := range find.IDs {
			holders = append(holders, placeholder(len(args)+1))
			args = append(args, id)
		}
		where = append(where, "id IN ("+strings.Join(holders, ", ")+")")
	}
	if find.Email != nil {
		where, args = append(where, "email = "+placeholder(len(args)+1)), append(args, *find.Email)
	}
	if find.CityCode != nil {
		where, args = append(where, "left(zip_code, 3) = "+placeholder(len(args)+1)), append(args, *find.CityCode)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC`
	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	defer rows.Close()

	list := []*store.UserProfile{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan user")
		}
		list = append(list, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// UpdateUser applies the non-nil fields of the update to a user row.
func (d *DB) UpdateUser(ctx context.Context, update *store.UpdateUser) (*store.UserProfile, error) {
	set, args := []string{}, []any{}

	add := func(column string, value any) {
		set = append(set, column+" = "+placeholder(len(args)+1))
		args = append(args, value)
	}

	if update.FirstName != nil {
		add("first_name", *update.FirstName)
	}
	if update.LastName != nil {
		add("last_name", *update.LastName)
	}
	if update.Email != nil {
		add("email", *update.Email)
	}
	if update.DateOfBirth != nil {
		add("date_of_birth", update.DateOfBirth.Unix())
	}
	if update.Gender != nil {
		add("gender", *update.Gender)
	}
	if update.ZipCode != nil {
		add("zip_code", *update.ZipCode)
	}
	if update.MoreAboutMe != nil {
		add("more_about_me", *update.MoreAboutMe)
	}
	if update.AvatarPath != nil {
		add("avatar_path", *update.AvatarPath)
	}
	if update.Budget != nil {
		add("budget_min", update.Budget.Min)
		add("budget_max", update.Budget.Max)
	}
	if update.Lifestyle != nil {
		add("ls_pet_friendly", nullableBool(update.Lifestyle.PetFriendly))
		add("ls_smoking", nullableBool(update.Lifestyle.Smoking))
		add("ls_night_owl", nullableBool(update.Lifestyle.NightOwl))
		add("ls_guest_frequency", update.Lifestyle.GuestFrequency)
	}
	if update.Preferences != nil {
		add("pref_pet_friendly", nullableBool(update.Preferences.PetFriendly))
		add("pref_smoking", nullableBool(update.Preferences.Smoking))
		add("pref_night_owl", nullableBool(update.Preferences.NightOwl))
		add("pref_guest_frequency", update.Preferences.GuestFrequency)
		add("pref_min_age", nullableInt(update.Preferences.MinAge))
		add("pref_max_age", nullableInt(update.Preferences.MaxAge))
		add("pref_gender", update.Preferences.Gender)
		add("pref_more_about", update.Preferences.MoreAboutRoommate)
	}
	add("updated_ts", time.Now().Unix())

	stmt := `UPDATE users SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)+1)
	args = append(args, update.ID)

	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update user")
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return nil, store.ErrUserNotFound
	}

	return d.GetUser(ctx, &store.FindUser{ID: &update.ID})
}

// DeleteUser removes a user row and its embeddings.
func (d *DB) DeleteUser(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM user_embedding WHERE user_id = $1`, id); err != nil {
		return errors.Wrap(err, "failed to delete user embeddings")
	}
	result, err := d.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete user")
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

func userWriteArgs(user *store.UserProfile) []any {
	var dob any
	if user.DateOfBirth != nil {
		dob = user.DateOfBirth.Unix()
	}
	var budgetMin, budgetMax any
	if user.Budget != nil {
		budgetMin, budgetMax = user.Budget.Min, user.Budget.Max
	}
	ls := user.Lifestyle
	if ls == nil {
		ls = &store.Lifestyle{}
	}
	pref := user.Preferences
	if pref == nil {
		pref = &store.Preference{}
	}

	return []any{
		user.ID, user.FirstName, user.LastName, user.Email, dob, user.Gender, user.ZipCode,
		user.MoreAboutMe, user.AvatarPath, budgetMin, budgetMax,
		nullableBool(ls.PetFriendly), nullableBool(ls.Smoking), nullableBool(ls.NightOwl), ls.GuestFrequency,
		nullableBool(pref.PetFriendly), nullableBool(pref.Smoking), nullableBool(pref.NightOwl), pref.GuestFrequency,
		nullableInt(pref.MinAge), nullableInt(pref.MaxAge), pref.Gender, pref.MoreAboutRoommate,
		user.CreatedTs, user.UpdatedTs,
	}
}

func nullableBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func scanUser(rows *sql.Rows) (*store.UserProfile, error) {
	var user store.UserProfile
	var dob, budgetMin, budgetMax, prefMinAge, prefMaxAge sql.NullInt64
	var lsPet, lsSmoking, lsNightOwl, prefPet, prefSmoking, prefNightOwl sql.NullBool
	var lsGuestFreq, prefGuestFreq, prefGender, prefMoreAbout string

	err := rows.Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Email, &dob, &user.Gender, &user.ZipCode,
		&user.MoreAboutMe, &user.AvatarPath, &budgetMin, &budgetMax,
		&lsPet, &lsSmoking, &lsNightOwl, &lsGuestFreq,
		&prefPet, &prefSmoking, &prefNightOwl, &prefGuestFreq,
		&prefMinAge, &prefMaxAge, &prefGender, &prefMoreAbout,
		&user.CreatedTs, &user.UpdatedTs,
	)
	if err != nil {
		return nil, err
	}

	if dob.Valid {
		t := time.Unix(dob.Int64, 0).UTC()
		user.DateOfBirth = &t
	}
	if budgetMin.Valid && budgetMax.Valid {
		user.Budget = &store.Budget{Min: int(budgetMin.Int64), Max: int(budgetMax.Int64)}
	}
	if lsPet.Valid || lsSmoking.Valid || lsNightOwl.Valid || lsGuestFreq != "" {
		user.Lifestyle = &store.Lifestyle{
			PetFriendly:    boolPtr(lsPet),
			Smoking:        boolPtr(lsSmoking),
			NightOwl:       boolPtr(lsNightOwl),
			GuestFrequency: lsGuestFreq,
		}
	}
	if prefPet.Valid || prefSmoking.Valid || prefNightOwl.Valid ||
		prefGuestFreq != "" || prefMinAge.Valid || prefMaxAge.Valid || prefGender != "" || prefMoreAbout != "" {
		user.Preferences = &store.Preference{
			PetFriendly:       boolPtr(prefPet),
			Smoking:           boolPtr(prefSmoking),
			NightOwl:          boolPtr(prefNightOwl),
			GuestFrequency:    prefGuestFreq,
			MinAge:            intPtr(prefMinAge),
			MaxAge:            intPtr(prefMaxAge),
			Gender:            prefGender,
			MoreAboutRoommate: prefMoreAbout,
		}
	}

	return &user, nil
}

func boolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
