package database

// Order queries
const (
	InsertOrderSQL = `
		INSERT INTO orders (number, client_name, client_email, client_phone, coordinator_email,
			application_id, delivery_date, delivery_time, delivery_type, delivery_address, delivery_cost,
			items_total, discount_fixed, discount_percent, discount_amount, final_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at`

	InsertOrderItemSQL = `
		INSERT INTO order_items (order_id, name, quantity, price)
		VALUES ($1, $2, $3, $4)`

	GetOrderByNumberSQL = `
		SELECT id, number, client_name, client_email, client_phone, coordinator_email,
			   application_id, delivery_date, delivery_time, delivery_type, delivery_address, delivery_cost,
			   items_total, discount_fixed, discount_percent, discount_amount, final_amount, status,
			   external_payment_id, payment_status, payment_attempts, payment_url,
			   payment_created_at, payment_completed_at, payment_details, created_at, updated_at
		FROM orders WHERE number = $1`

	GetOrderByIDSQL = `
		SELECT id, number, client_name, client_email, client_phone, coordinator_email,
			   application_id, delivery_date, delivery_time, delivery_type, delivery_address, delivery_cost,
			   items_total, discount_fixed, discount_percent, discount_amount, final_amount, status,
			   external_payment_id, payment_status, payment_attempts, payment_url,
			   payment_created_at, payment_completed_at, payment_details, created_at, updated_at
		FROM orders WHERE id = $1`

	GetOrderByExternalPaymentSQL = `
		SELECT id, number, client_name, client_email, client_phone, coordinator_email,
			   application_id, delivery_date, delivery_time, delivery_type, delivery_address, delivery_cost,
			   items_total, discount_fixed, discount_percent, discount_amount, final_amount, status,
			   external_payment_id, payment_status, payment_attempts, payment_url,
			   payment_created_at, payment_completed_at, payment_details, created_at, updated_at
		FROM orders WHERE external_payment_id = $1`

	GetOrderForUpdateSQL = `
		SELECT id, number, client_name, client_email, client_phone, coordinator_email,
			   application_id, delivery_date, delivery_time, delivery_type, delivery_address, delivery_cost,
			   items_total, discount_fixed, discount_percent, discount_amount, final_amount, status,
			   external_payment_id, payment_status, payment_attempts, payment_url,
			   payment_created_at, payment_completed_at, payment_details, created_at, updated_at
		FROM orders WHERE id = $1
		FOR UPDATE`

	GetOrderItemsSQL = `
		SELECT id, order_id, name, quantity, price
		FROM order_items WHERE order_id = $1
		ORDER BY id ASC`

	UpdateOrderStatusSQL = `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2`

	UpdateOrderPaymentSQL = `
		UPDATE orders SET status = $1, payment_status = $2, payment_attempts = $3,
			external_payment_id = $4, payment_url = $5, payment_created_at = $6,
			payment_completed_at = $7, payment_details = $8, updated_at = NOW()
		WHERE id = $9`

	ListOrdersAwaitingReconciliationSQL = `
		SELECT id FROM orders
		WHERE payment_status = 'pending' AND external_payment_id IS NOT NULL
		ORDER BY payment_created_at ASC
		LIMIT $1`

	GetNextOrderNumberSQL = `
		SELECT COALESCE(MAX(CAST(SUBSTRING(number FROM 'ORD_[0-9]{8}_([0-9]{3})') AS INTEGER)), 0) + 1
		FROM orders
		WHERE number LIKE $1`

	ListOrdersDeliveringOnSQL = `
		SELECT id, number, client_name, client_email, coordinator_email, delivery_date, delivery_time,
			   delivery_address, final_amount
		FROM orders
		WHERE delivery_date = $1 AND status IN ('paid', 'processing')
		ORDER BY delivery_time ASC`

	WeeklyOrderStatsSQL = `
		SELECT COUNT(*),
			   COUNT(*) FILTER (WHERE status = 'completed'),
			   COUNT(*) FILTER (WHERE status = 'cancelled'),
			   COALESCE(SUM(final_amount) FILTER (WHERE payment_status = 'charged'), 0)
		FROM orders
		WHERE created_at >= $1`
)

// Notification queries
const (
	InsertNotificationSQL = `
		INSERT INTO notifications (type, recipient, role, subject, body, metadata, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	MarkNotificationSentSQL = `
		UPDATE notifications SET status = 'sent', sent_at = $1, updated_at = NOW()
		WHERE id = $2`

	MarkNotificationFailedSQL = `
		UPDATE notifications SET status = 'failed', error_message = $1, retry_count = $2,
			next_retry_at = $3, updated_at = NOW()
		WHERE id = $4`

	MarkNotificationBouncedSQL = `
		UPDATE notifications SET status = 'bounced', error_message = $1, updated_at = NOW()
		WHERE id = $2`

	ClaimDueNotificationsSQL = `
		UPDATE notifications SET next_retry_at = NULL, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM notifications
			WHERE status = 'failed' AND next_retry_at <= NOW()
			ORDER BY next_retry_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, type, recipient, role, subject, body, metadata, status,
			      sent_at, error_message, retry_count, next_retry_at, created_at`
)

// Application queries
const (
	InsertApplicationSQL = `
		INSERT INTO applications (client_name, client_email, client_phone, event_date, guests, comment, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'new')
		RETURNING id, created_at`

	GetApplicationSQL = `
		SELECT id, client_name, client_email, client_phone, event_date, guests, comment, status, created_at
		FROM applications WHERE id = $1`

	UpdateApplicationStatusSQL = `
		UPDATE applications SET status = $1, updated_at = NOW()
		WHERE id = $2`
)
